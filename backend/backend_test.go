package backend

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/b0bbywan/odio-bluetooth/config"
)

func disabledConfig() *config.Config {
	return &config.Config{
		Api:        &config.ApiConfig{Enabled: false},
		Bluetooth:  &config.BluetoothConfig{Enabled: false},
		Killswitch: &config.KillswitchConfig{Enabled: false},
		Zeroconf:   &config.ZeroConfig{Enabled: false},
		MQTT:       &config.MQTTConfig{Enabled: false},
	}
}

// TestBackendDisabled verifies that backends are nil when disabled in config
func TestBackendDisabled(t *testing.T) {
	tests := []struct {
		name       string
		killswitch bool
		zeroconf   bool
	}{
		{"all backends disabled", false, false},
		{"only killswitch enabled", true, false},
		{"zeroconf without interfaces", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := disabledConfig()
			cfg.Killswitch.Enabled = tt.killswitch
			cfg.Zeroconf.Enabled = tt.zeroconf
			cfg.Zeroconf.Listen = []net.Interface{}

			backend, err := New(context.Background(), cfg)
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			defer backend.Close()

			if backend.Bluetooth != nil {
				t.Error("Bluetooth should be nil when disabled")
			}
			if tt.killswitch != (backend.Killswitch != nil) {
				t.Errorf("Killswitch = %v, enabled = %v", backend.Killswitch, tt.killswitch)
			}
			if backend.Zeroconf != nil {
				t.Error("Zeroconf should be nil without interfaces")
			}
			if backend.MQTT != nil {
				t.Error("MQTT should be nil when disabled")
			}
			if backend.Broadcaster() == nil {
				t.Error("Broadcaster() should never be nil")
			}
		})
	}
}

func TestNewPropagatesConfigErrors(t *testing.T) {
	cfg := disabledConfig()
	cfg.MQTT = &config.MQTTConfig{Enabled: true, QoS: 7}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() should reject an invalid MQTT QoS")
	}

	cfg = disabledConfig()
	cfg.Bluetooth = &config.BluetoothConfig{Enabled: true, CatalogPath: "/nonexistent/catalog.yaml"}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() should fail without a system bus or with a missing catalog")
	}
}

// Start keeps going when the rfkill device cannot be opened.
func TestStartWithoutKillswitchDevice(t *testing.T) {
	cfg := disabledConfig()
	cfg.Killswitch = &config.KillswitchConfig{Enabled: true, DevicePath: t.TempDir()}

	backend, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer backend.Close()

	if err := backend.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if backend.Killswitch != nil {
		t.Error("Killswitch should be dropped when the device cannot be opened")
	}
}

// TestBackendStartWithNilBackends verifies Start() doesn't panic with nil backends
func TestBackendStartWithNilBackends(t *testing.T) {
	backend := &Backend{}
	if err := backend.Start(); err != nil {
		t.Errorf("Start() should not return error with all backends nil: %v", err)
	}
}

// TestBackendCloseWithNilBackends verifies Close() doesn't panic with nil backends
func TestBackendCloseWithNilBackends(t *testing.T) {
	backend := &Backend{}
	backend.Close()
}

func TestGetServerDeviceInfo(t *testing.T) {
	backend := &Backend{}
	info, err := backend.GetServerDeviceInfo()
	if err != nil {
		t.Fatalf("GetServerDeviceInfo() error: %v", err)
	}
	if info.APISW != config.AppName || info.APIVersion != config.AppVersion {
		t.Errorf("api = %s %s", info.APISW, info.APIVersion)
	}
	if info.Backends != (Backends{}) {
		t.Errorf("Backends = %+v, want all false", info.Backends)
	}
	if !strings.Contains(info.OSPlatform, "/") {
		t.Errorf("OSPlatform = %q", info.OSPlatform)
	}
}

func TestParseKeyValue(t *testing.T) {
	in := "NAME=\"Debian GNU/Linux\"\nPRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\n# comment\nVERSION_ID=12\n"
	got, err := parseKeyValue(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if got["PRETTY_NAME"] != "Debian GNU/Linux 12 (bookworm)" || got["VERSION_ID"] != "12" {
		t.Errorf("parseKeyValue = %v", got)
	}
	if _, ok := got["# comment"]; ok {
		t.Error("lines without '=' should be skipped")
	}
}

func TestReadOSReleaseMissing(t *testing.T) {
	if got := readOSRelease("/nonexistent/os-release"); got != UNKNOWN {
		t.Errorf("readOSRelease = %q, want %q", got, UNKNOWN)
	}
}
