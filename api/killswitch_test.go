package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/backend/killswitch"
	"github.com/b0bbywan/odio-bluetooth/config"
)

// killswitchServer serves a monitor still waiting for its device node.
func killswitchServer(t *testing.T) http.Handler {
	t.Helper()
	m, err := killswitch.New(context.Background(), &config.KillswitchConfig{
		Enabled:    true,
		DevicePath: filepath.Join(t.TempDir(), "rfkill"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Close)
	return NewServer(&config.ApiConfig{Enabled: true}, &backend.Backend{Killswitch: m}).Handler()
}

func TestGetKillswitch(t *testing.T) {
	h := killswitchServer(t)

	w := do(h, http.MethodGet, "/killswitch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got struct {
		State           string `json:"state"`
		Radios          int    `json:"radios"`
		HasKillswitches bool   `json:"has_killswitches"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != "no-adapter" || got.Radios != 0 || got.HasKillswitches {
		t.Errorf("killswitch = %+v", got)
	}
}

func TestSetKillswitch(t *testing.T) {
	h := killswitchServer(t)

	tests := []struct {
		body string
		code int
	}{
		{`{"state":"soft-blocked"}`, http.StatusServiceUnavailable},
		{`{"state":"unblocked"}`, http.StatusServiceUnavailable},
		{`{"state":"hard-blocked"}`, http.StatusBadRequest},
		{`{"state":"off"}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			if w := do(h, http.MethodPost, "/killswitch", tt.body); w.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.code, w.Body)
			}
		})
	}
}
