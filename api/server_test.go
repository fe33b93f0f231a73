package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/config"
)

// TestServerDisabled verifies that NewServer returns nil when API is disabled
func TestServerDisabled(t *testing.T) {
	if server := NewServer(&config.ApiConfig{Enabled: false}, &backend.Backend{}); server != nil {
		t.Error("NewServer should return nil when API is disabled")
	}
	if server := NewServer(nil, &backend.Backend{}); server != nil {
		t.Error("NewServer should return nil without config")
	}
}

// TestRoutesWithDisabledBackends verifies that routes are not registered for disabled backends
func TestRoutesWithDisabledBackends(t *testing.T) {
	server := NewServer(&config.ApiConfig{Enabled: true, Port: 8090}, &backend.Backend{})
	if server == nil {
		t.Fatal("NewServer should return a non-nil server")
	}
	h := server.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"server route exists", http.MethodGet, "/server", http.StatusOK},
		{"root is hidden", http.MethodGet, "/", http.StatusNotFound},
		{"bluetooth disabled", http.MethodGet, "/bluetooth/adapters", http.StatusNotFound},
		{"bluetooth commands disabled", http.MethodPost, "/bluetooth/discovery/start", http.StatusNotFound},
		{"killswitch disabled", http.MethodGet, "/killswitch", http.StatusNotFound},
		{"sse without broadcaster", http.MethodGet, "/events", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(h, tt.method, tt.path, ""); w.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestSSERouteFollowsConfig(t *testing.T) {
	cfg := &config.Config{
		Bluetooth:  &config.BluetoothConfig{},
		Killswitch: &config.KillswitchConfig{},
		Zeroconf:   &config.ZeroConfig{},
		MQTT:       &config.MQTTConfig{},
	}
	b, err := backend.New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	for _, sse := range []bool{true, false} {
		s := NewServer(&config.ApiConfig{Enabled: true, SSE: sse}, b)
		_, pattern := s.mux.Handler(mustRequest(t, "/events"))
		if (pattern == "GET /events") != sse {
			t.Errorf("SSE=%v: /events pattern = %q", sse, pattern)
		}
	}
}

func mustRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestServerNilBackend(t *testing.T) {
	server := NewServer(&config.ApiConfig{Enabled: true}, nil)
	if server == nil {
		t.Fatal("NewServer should not depend on the backend")
	}
	if w := do(server.Handler(), http.MethodGet, "/server", ""); w.Code != http.StatusNotFound {
		t.Errorf("/server without backend = %d, want 404", w.Code)
	}
}
