package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// Stdout implements Transport by writing messages to standard output.
// Intended for development and debugging; messages are never actually delivered.
type Stdout struct {
	writer io.Writer
}

// NewStdout creates a Stdout transport that prints messages to os.Stdout.
func NewStdout() *Stdout {
	return &Stdout{writer: os.Stdout}
}

// SendMessage prints the message and returns a successful result.
func (s *Stdout) SendMessage(_ context.Context, phone, body string) (*Result, error) {
	if _, err := fmt.Fprintf(s.writer, "--- stdout transport ---\nTo:   %s\nBody: %s\n--- end ---\n", phone, body); err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}
	return &Result{
		Success:   true,
		MessageID: "stdout-" + uuid.New().String(),
		Timestamp: time.Now(),
	}, nil
}
