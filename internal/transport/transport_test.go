package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStdoutSendMessage(t *testing.T) {
	var buf bytes.Buffer
	s := &Stdout{writer: &buf}

	result, err := s.SendMessage(context.Background(), "+5511999990000", "Olá Maria!")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Error("expected success result")
	}
	if result.MessageID == "" {
		t.Error("expected a message ID")
	}
	out := buf.String()
	if !strings.Contains(out, "+5511999990000") || !strings.Contains(out, "Olá Maria!") {
		t.Errorf("output missing phone or body:\n%s", out)
	}
}

func TestHTTPSendMessageSuccess(t *testing.T) {
	var gotAuth, gotContentType string
	var gotReq sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(sendResponse{MessageID: "msg-123"})
	}))
	defer server.Close()

	tr := NewHTTP(HTTPConfig{GatewayURL: server.URL, APIToken: "secret-token"})
	result, err := tr.SendMessage(context.Background(), "+5511988887777", "Oferta especial!")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !result.Success {
		t.Error("expected success result")
	}
	if result.MessageID != "msg-123" {
		t.Errorf("expected message ID msg-123, got %s", result.MessageID)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	if gotReq.Phone != "+5511988887777" || gotReq.Message != "Oferta especial!" {
		t.Errorf("unexpected request payload: %+v", gotReq)
	}
}

func TestHTTPSendMessageGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(sendResponse{Error: "invalid phone number"})
	}))
	defer server.Close()

	tr := NewHTTP(HTTPConfig{GatewayURL: server.URL})
	result, err := tr.SendMessage(context.Background(), "not-a-phone", "hello")
	if err != nil {
		t.Fatalf("gateway rejection must be a failed result, got error %v", err)
	}

	if result.Success {
		t.Error("expected failed result")
	}
	if result.Error != "invalid phone number" {
		t.Errorf("expected gateway error message, got %q", result.Error)
	}
}

func TestHTTPSendMessageNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	tr := NewHTTP(HTTPConfig{GatewayURL: server.URL})
	result, err := tr.SendMessage(context.Background(), "+5511999990000", "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Success {
		t.Error("expected failed result")
	}
	if !strings.Contains(result.Error, "502") {
		t.Errorf("expected status code in error, got %q", result.Error)
	}
}

func TestHTTPSendMessageConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	tr := NewHTTP(HTTPConfig{GatewayURL: server.URL, Timeout: time.Second})
	if _, err := tr.SendMessage(context.Background(), "+5511999990000", "hello"); err == nil {
		t.Fatal("expected transport error for unreachable gateway, got nil")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "http",
			cfg:  Config{Type: "http", GatewayURL: "https://gateway.example/send"},
			want: "*transport.HTTP",
		},
		{
			name:    "http without gateway URL",
			cfg:     Config{Type: "http"},
			wantErr: true,
		},
		{
			name: "stdout",
			cfg:  Config{Type: "stdout"},
			want: "*transport.Stdout",
		},
		{
			name: "empty type defaults to stdout",
			cfg:  Config{},
			want: "*transport.Stdout",
		},
		{
			name:    "unknown type",
			cfg:     Config{Type: "carrier-pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			switch tt.want {
			case "*transport.HTTP":
				if _, ok := tr.(*HTTP); !ok {
					t.Errorf("got %T, want %s", tr, tt.want)
				}
			case "*transport.Stdout":
				if _, ok := tr.(*Stdout); !ok {
					t.Errorf("got %T, want %s", tr, tt.want)
				}
			}
		})
	}
}
