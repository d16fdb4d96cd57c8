package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "X-Forwarded-For, первый адрес", xff: "203.0.113.7, 10.0.0.1", realIP: "10.0.0.2", remoteAddr: "10.0.0.3:5555", want: "203.0.113.7"},
		{name: "X-Real-IP", realIP: "198.51.100.4", remoteAddr: "10.0.0.3:5555", want: "198.51.100.4"},
		{name: "RemoteAddr без порта", remoteAddr: "192.0.2.10:41000", want: "192.0.2.10"},
		{name: "IPv6 RemoteAddr", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "пустой XFF", xff: " , 10.0.0.1", remoteAddr: "192.0.2.10:1", want: "192.0.2.10"},
		{name: "RemoteAddr без порта как есть", remoteAddr: "unix", want: "unix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, ожидали %q", got, tt.want)
			}
		})
	}
}
