package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/config"
)

// deviceJSON is the wire form of a device row.
type deviceJSON struct {
	Path     dbus.ObjectPath   `json:"path"`
	Address  string            `json:"address"`
	Alias    string            `json:"alias"`
	Type     string            `json:"type"`
	Services map[string]string `json:"services"`
}

func bluetoothServer(t *testing.T, bus *fakeBluez, agent bool) http.Handler {
	t.Helper()
	c := startClient(t, bus, agent)
	s := NewServer(&config.ApiConfig{Enabled: true}, &backend.Backend{Bluetooth: c})
	return s.Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListAdapters(t *testing.T) {
	h := bluetoothServer(t, newFakeBluez(), false)

	w := do(h, http.MethodGet, "/bluetooth/adapters", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var adapters []bluetooth.Adapter
	if err := json.Unmarshal(w.Body.Bytes(), &adapters); err != nil {
		t.Fatal(err)
	}
	if len(adapters) != 1 || adapters[0].Path != hci0 || !adapters[0].IsDefault || !adapters[0].Powered {
		t.Errorf("adapters = %+v", adapters)
	}
}

func TestListDevices(t *testing.T) {
	h := bluetoothServer(t, newFakeBluez(), false)

	tests := []struct {
		query string
		code  int
		want  []string
	}{
		{"", http.StatusOK, []string{headsetAddr, keyboardAddr}},
		{"?adapter=hci0", http.StatusOK, []string{headsetAddr, keyboardAddr}},
		{"?adapter=/org/bluez/hci0&category=paired", http.StatusOK, []string{headsetAddr}},
		{"?category=not-paired-or-trusted", http.StatusOK, []string{keyboardAddr}},
		{"?type=keyboard", http.StatusOK, []string{keyboardAddr}},
		{"?type=headset,phone", http.StatusOK, []string{headsetAddr}},
		{"?uuid=AudioSink", http.StatusOK, []string{headsetAddr}},
		{"?type=toaster", http.StatusBadRequest, nil},
		{"?category=bonded", http.StatusBadRequest, nil},
		{"?adapter=hci9", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(h, http.MethodGet, "/bluetooth/devices"+tt.query, "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body)
			}
			if tt.code != http.StatusOK {
				return
			}
			var devices []deviceJSON
			if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, d := range devices {
				got = append(got, d.Address)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("devices = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	h := bluetoothServer(t, newFakeBluez(), false)

	w := do(h, http.MethodGet, "/bluetooth/devices/00-11-22-33-44-55", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var d deviceJSON
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Path != headsetPath || d.Alias != "Headset" || d.Type != "headset" || d.Services[bluetooth.AUDIO_IFACE] != "disconnected" {
		t.Errorf("device = %+v", d)
	}

	for _, addr := range []string{"12:34:56:78:9A:BC", "not-an-address"} {
		if w := do(h, http.MethodGet, "/bluetooth/devices/"+addr, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", addr, w.Code)
		}
	}
}

func TestCreateDevice(t *testing.T) {
	tests := []struct {
		name       string
		agent      bool
		body       string
		code       int
		wantMethod string
	}{
		{"create", false, `{"address":"22:22:22:22:22:22"}`, http.StatusCreated, bluetooth.CREATE_DEVICE},
		{"pair", true, `{"address":"22:22:22:22:22:22","pair":true}`, http.StatusCreated, bluetooth.CREATE_PAIRED_DEVICE},
		{"pair without agent", false, `{"address":"22:22:22:22:22:22","pair":true}`, http.StatusConflict, ""},
		{"bad address", false, `{"address":"nope"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBluez()
			h := bluetoothServer(t, bus, tt.agent)

			w := do(h, http.MethodPost, "/bluetooth/devices", tt.body)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body)
			}
			if tt.wantMethod == "" {
				return
			}
			var resp createDeviceResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Address != "22:22:22:22:22:22" || resp.Path != hci0+"/dev_22_22_22_22_22_22" {
				t.Errorf("response = %+v", resp)
			}
			calls := bus.callsTo(tt.wantMethod)
			if len(calls) != 1 {
				t.Fatalf("%s calls = %d", tt.wantMethod, len(calls))
			}
			if tt.agent && calls[0].args[1] != dbus.ObjectPath(agentPath) {
				t.Errorf("agent argument = %v", calls[0].args[1])
			}
		})
	}
}

func TestCreateDeviceAgentNotRegistered(t *testing.T) {
	bus := newFakeBluez()
	c := startClient(t, bus, true)
	h := NewServer(&config.ApiConfig{Enabled: true}, &backend.Backend{Bluetooth: c}).Handler()

	if err := c.Agent().Unregister(); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	w := do(h, http.MethodPost, "/bluetooth/devices", `{"address":"22:22:22:22:22:22","pair":true}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", w.Code, w.Body)
	}
	if calls := bus.callsTo(bluetooth.CREATE_PAIRED_DEVICE); len(calls) != 0 {
		t.Errorf("CreatePairedDevice sent without a registered agent: %v", calls)
	}
}

func TestCreateDeviceFailure(t *testing.T) {
	bus := newFakeBluez()
	bus.failOn(bluetooth.CREATE_DEVICE, dbus.NewError("org.bluez.Error.AlreadyExists", nil))
	h := bluetoothServer(t, bus, false)

	w := do(h, http.MethodPost, "/bluetooth/devices", `{"address":"22:22:22:22:22:22"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502: %s", w.Code, w.Body)
	}
}

func TestDeviceCommands(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		code       int
		wantMethod string
		wantArgs   []interface{}
	}{
		{"connect", http.MethodPost, "/bluetooth/devices/" + headsetAddr + "/connect", http.StatusAccepted, bluetooth.AUDIO_IFACE + "." + bluetooth.CONNECT, nil},
		{"connect without service", http.MethodPost, "/bluetooth/devices/" + keyboardAddr + "/connect", http.StatusConflict, "", nil},
		{"disconnect", http.MethodPost, "/bluetooth/devices/" + headsetAddr + "/disconnect", http.StatusAccepted, bluetooth.AUDIO_IFACE + "." + bluetooth.DISCONNECT, nil},
		{"disconnect whole device", http.MethodPost, "/bluetooth/devices/" + keyboardAddr + "/disconnect", http.StatusAccepted, bluetooth.DEVICE_DISCONNECT, nil},
		{"trust", http.MethodPost, "/bluetooth/devices/" + keyboardAddr + "/trust", http.StatusAccepted, bluetooth.DEVICE_SET_PROPERTY, []interface{}{bluetooth.PROP_TRUSTED, dbus.MakeVariant(true)}},
		{"untrust", http.MethodPost, "/bluetooth/devices/" + headsetAddr + "/untrust", http.StatusAccepted, bluetooth.DEVICE_SET_PROPERTY, []interface{}{bluetooth.PROP_TRUSTED, dbus.MakeVariant(false)}},
		{"remove", http.MethodDelete, "/bluetooth/devices/" + headsetAddr, http.StatusAccepted, bluetooth.REMOVE_DEVICE, []interface{}{headsetPath}},
		{"unknown device", http.MethodPost, "/bluetooth/devices/12:34:56:78:9A:BC/trust", http.StatusNotFound, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBluez()
			h := bluetoothServer(t, bus, false)

			w := do(h, tt.method, tt.target, "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body)
			}
			if tt.wantMethod == "" {
				return
			}
			calls := bus.callsTo(tt.wantMethod)
			if len(calls) == 0 {
				t.Fatalf("no %s call", tt.wantMethod)
			}
			if tt.wantArgs != nil {
				got := calls[len(calls)-1].args
				if len(got) != len(tt.wantArgs) {
					t.Fatalf("args = %v, want %v", got, tt.wantArgs)
				}
				for i := range got {
					if !variantEqual(got[i], tt.wantArgs[i]) {
						t.Errorf("arg %d = %v, want %v", i, got[i], tt.wantArgs[i])
					}
				}
			}
		})
	}
}

func variantEqual(a, b interface{}) bool {
	va, okA := a.(dbus.Variant)
	vb, okB := b.(dbus.Variant)
	if okA && okB {
		return va.Value() == vb.Value()
	}
	return a == b
}

func TestAdapterCommands(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		code       int
		wantMethod string
		wantCalls  int
	}{
		{"discoverable", "/bluetooth/discoverable", `{"enabled":true}`, http.StatusAccepted, bluetooth.ADAPTER_SET_PROPERTY, 2},
		{"discoverable without body", "/bluetooth/discoverable", `{}`, http.StatusBadRequest, bluetooth.ADAPTER_SET_PROPERTY, 0},
		{"power off", "/bluetooth/power", `{"enabled":false}`, http.StatusAccepted, bluetooth.ADAPTER_SET_PROPERTY, 1},
		{"start discovery", "/bluetooth/discovery/start", "", http.StatusAccepted, bluetooth.START_DISCOVERY, 1},
		{"stop discovery", "/bluetooth/discovery/stop", "", http.StatusAccepted, bluetooth.STOP_DISCOVERY, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBluez()
			h := bluetoothServer(t, bus, false)

			w := do(h, http.MethodPost, tt.target, tt.body)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body)
			}
			if got := len(bus.callsTo(tt.wantMethod)); got != tt.wantCalls {
				t.Errorf("%s calls = %d, want %d", tt.wantMethod, got, tt.wantCalls)
			}
		})
	}
}

func TestAdapterCommandFailure(t *testing.T) {
	bus := newFakeBluez()
	bus.failOn(bluetooth.START_DISCOVERY, dbus.NewError("org.bluez.Error.NotReady", nil))
	h := bluetoothServer(t, bus, false)

	if w := do(h, http.MethodPost, "/bluetooth/discovery/start", ""); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
