package transport

import (
	"fmt"
	"time"
)

// Config selects and configures a transport backend.
type Config struct {
	// Type is "http" or "stdout".
	Type       string
	GatewayURL string
	APIToken   string
	Timeout    time.Duration
}

// New creates a Transport from the given configuration.
func New(cfg Config) (Transport, error) {
	switch cfg.Type {
	case "http":
		if cfg.GatewayURL == "" {
			return nil, fmt.Errorf("http transport requires a gateway URL")
		}
		return NewHTTP(HTTPConfig{
			GatewayURL: cfg.GatewayURL,
			APIToken:   cfg.APIToken,
			Timeout:    cfg.Timeout,
		}), nil
	case "stdout", "":
		return NewStdout(), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}
