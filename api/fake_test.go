package api

import (
	"context"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/config"
)

const (
	hci0         = dbus.ObjectPath("/org/bluez/hci0")
	headsetAddr  = "00:11:22:33:44:55"
	keyboardAddr = "AA:BB:CC:DD:EE:FF"
	agentPath    = "/test/agent"
)

var (
	headsetPath  = hci0 + "/dev_00_11_22_33_44_55"
	keyboardPath = hci0 + "/dev_AA_BB_CC_DD_EE_FF"
)

type busCall struct {
	path   dbus.ObjectPath
	method string
	args   []interface{}
}

// fakeBluez answers the handful of daemon calls the client makes: one
// powered adapter holding a paired headset and a keyboard.
type fakeBluez struct {
	mu       sync.Mutex
	props    map[dbus.ObjectPath]map[string]dbus.Variant
	services map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	fail     map[string]error
	calls    []busCall
}

func newFakeBluez() *fakeBluez {
	return &fakeBluez{
		props: map[dbus.ObjectPath]map[string]dbus.Variant{
			hci0: {
				"Address":      dbus.MakeVariant("00:00:00:00:00:01"),
				"Name":         dbus.MakeVariant("odio"),
				"Powered":      dbus.MakeVariant(true),
				"Discoverable": dbus.MakeVariant(false),
				"Discovering":  dbus.MakeVariant(false),
				"Devices":      dbus.MakeVariant([]dbus.ObjectPath{headsetPath, keyboardPath}),
			},
			headsetPath: {
				"Address": dbus.MakeVariant(headsetAddr),
				"Alias":   dbus.MakeVariant("Headset"),
				"Class":   dbus.MakeVariant(uint32(0x240404)),
				"Paired":  dbus.MakeVariant(true),
				"Trusted": dbus.MakeVariant(true),
				"UUIDs":   dbus.MakeVariant([]string{"0000110b-0000-1000-8000-00805f9b34fb"}),
			},
			keyboardPath: {
				"Address": dbus.MakeVariant(keyboardAddr),
				"Alias":   dbus.MakeVariant("Keyboard"),
				"Class":   dbus.MakeVariant(uint32(0x002540)),
				"Paired":  dbus.MakeVariant(false),
				"Trusted": dbus.MakeVariant(false),
				"UUIDs":   dbus.MakeVariant([]string{}),
			},
		},
		services: map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
			headsetPath: {
				bluetooth.AUDIOSINK_IFACE: {"State": dbus.MakeVariant("disconnected")},
				bluetooth.AUDIO_IFACE:     {"State": dbus.MakeVariant("disconnected")},
			},
		},
		fail: make(map[string]error),
	}
}

func (f *fakeBluez) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *fakeBluez) callsTo(method string) []busCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []busCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBluez) reply(path dbus.ObjectPath, method string, args []interface{}) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, busCall{path, method, args})

	if err, ok := f.fail[method]; ok {
		return nil, err
	}
	switch method {
	case bluetooth.LIST_ADAPTERS:
		return []interface{}{[]dbus.ObjectPath{hci0}}, nil
	case bluetooth.DEFAULT_ADAPTER:
		return []interface{}{hci0}, nil
	case bluetooth.ADAPTER_GET_PROPERTIES, bluetooth.DEVICE_GET_PROPERTIES:
		if p, ok := f.props[path]; ok {
			return []interface{}{maps.Clone(p)}, nil
		}
		return nil, dbus.NewError("org.freedesktop.DBus.Error.UnknownObject", nil)
	case bluetooth.CREATE_DEVICE, bluetooth.CREATE_PAIRED_DEVICE:
		return []interface{}{path + "/dev_22_22_22_22_22_22"}, nil
	}
	for iface, props := range f.services[path] {
		if method == iface+"."+bluetooth.GET_PROPERTIES {
			return []interface{}{maps.Clone(props)}, nil
		}
	}
	if strings.HasSuffix(method, "."+bluetooth.GET_PROPERTIES) {
		return nil, dbus.NewError("org.freedesktop.DBus.Error.UnknownMethod", nil)
	}
	return nil, nil
}

func (f *fakeBluez) Call(dest string, path dbus.ObjectPath, method string, args ...interface{}) ([]interface{}, error) {
	return f.reply(path, method, args)
}

func (f *fakeBluez) CallAsync(dest string, path dbus.ObjectPath, method string, timeout time.Duration, done func([]interface{}, error), args ...interface{}) {
	done(f.reply(path, method, args))
}

func (f *fakeBluez) NameOwner(string) (string, error)                  { return ":1.7", nil }
func (f *fakeBluez) AddMatch(string) error                             { return nil }
func (f *fakeBluez) RemoveMatch(string) error                          { return nil }
func (f *fakeBluez) Signal(chan<- *dbus.Signal)                        {}
func (f *fakeBluez) RemoveSignal(chan<- *dbus.Signal)                  {}
func (f *fakeBluez) Export(interface{}, dbus.ObjectPath, string) error { return nil }
func (f *fakeBluez) Unexport(dbus.ObjectPath, string) error            { return nil }
func (f *fakeBluez) Close() error                                      { return nil }

// startClient runs a real client over bus and waits for its bootstrap.
func startClient(t *testing.T, bus *fakeBluez, agent bool) *bluetooth.Client {
	t.Helper()
	cfg := &config.BluetoothConfig{
		Enabled:       true,
		ProbeCacheTTL: time.Minute,
		Agent:         &config.AgentConfig{Enabled: agent, Path: agentPath},
	}
	c, err := bluetooth.NewWithTransport(context.Background(), bus, cfg)
	if err != nil {
		t.Fatalf("NewWithTransport: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Close)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, ok := c.Registry().DefaultAdapter()
		ready := !agent || c.Agent().Registered()
		if ok && ready && len(c.Registry().Devices(hci0)) == 2 {
			return c
		}
		if time.Now().After(deadline) {
			t.Fatal("bootstrap did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
