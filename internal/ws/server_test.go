package ws

import (
	"net/http/httptest"
	"testing"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"NoOrigin", "", "example.com:8080", true},
		{"SameHost", "http://example.com:8080", "example.com:8080", true},
		{"Localhost", "http://localhost:3000", "example.com:8080", true},
		{"Loopback", "http://127.0.0.1:3000", "example.com:8080", true},
		{"IPv6Loopback", "http://[::1]:3000", "example.com:8080", true},
		{"CrossOrigin", "http://evil.example.net", "example.com:8080", false},
		{"Garbage", "not a url", "example.com:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://"+tt.host+"/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(origin=%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
