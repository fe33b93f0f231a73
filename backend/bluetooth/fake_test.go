package bluetooth

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
)

const (
	testOwner = ":1.42"
	hci0      = dbus.ObjectPath("/org/bluez/hci0")
	hci1      = dbus.ObjectPath("/org/bluez/hci1")

	uuidAudioSink = "0000110b-0000-1000-8000-00805f9b34fb"
	uuidHID       = "00001124-0000-1000-8000-00805f9b34fb"
)

type fakeCall struct {
	path    dbus.ObjectPath
	method  string
	timeout time.Duration
	args    []interface{}
}

type pendingCall struct {
	fakeCall
	done func([]interface{}, error)
}

// fakeBus is an in-memory BlueZ 4 daemon behind the Transport interface.
type fakeBus struct {
	mu sync.Mutex

	owner      string
	adapters   []dbus.ObjectPath
	defaultAdp dbus.ObjectPath
	props      map[dbus.ObjectPath]map[string]dbus.Variant
	services   map[dbus.ObjectPath]map[string]map[string]dbus.Variant

	// fail forces an error for "path method" or "method" keys.
	fail map[string]error
	// hold keeps async calls pending until complete is called.
	hold    bool
	pending []pendingCall

	calls    []fakeCall
	exported map[dbus.ObjectPath]interface{}
	matches  []string
	closed   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		owner:    testOwner,
		props:    make(map[dbus.ObjectPath]map[string]dbus.Variant),
		services: make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant),
		fail:     make(map[string]error),
		exported: make(map[dbus.ObjectPath]interface{}),
	}
}

func (f *fakeBus) addAdapter(path dbus.ObjectPath, props map[string]dbus.Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters = append(f.adapters, path)
	f.props[path] = props
}

func (f *fakeBus) setProps(path dbus.ObjectPath, props map[string]dbus.Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[path] = props
}

func (f *fakeBus) setService(path dbus.ObjectPath, iface string, props map[string]dbus.Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.services[path] == nil {
		f.services[path] = make(map[string]map[string]dbus.Variant)
	}
	f.services[path][iface] = props
}

func (f *fakeBus) failOn(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[key] = err
}

func (f *fakeBus) reply(path dbus.ObjectPath, method string) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.fail[string(path)+" "+method]; ok {
		return nil, err
	}
	if err, ok := f.fail[method]; ok {
		return nil, err
	}

	switch method {
	case LIST_ADAPTERS:
		return []interface{}{slices.Clone(f.adapters)}, nil
	case DEFAULT_ADAPTER:
		if f.defaultAdp == "" {
			return nil, dbus.NewError("org.bluez.Error.NoSuchAdapter", nil)
		}
		return []interface{}{f.defaultAdp}, nil
	case ADAPTER_GET_PROPERTIES, DEVICE_GET_PROPERTIES:
		props, ok := f.props[path]
		if !ok {
			return nil, dbus.NewError(idbus.ERR_UNKNOWN_OBJECT, nil)
		}
		return []interface{}{maps.Clone(props)}, nil
	case CREATE_DEVICE, CREATE_PAIRED_DEVICE:
		return []interface{}{path + "/dev_new"}, nil
	}

	for _, iface := range []string{HEADSET_IFACE, AUDIOSINK_IFACE, AUDIO_IFACE, INPUT_IFACE} {
		if method != iface+"."+GET_PROPERTIES {
			continue
		}
		if props, ok := f.services[path][iface]; ok {
			return []interface{}{maps.Clone(props)}, nil
		}
		return nil, dbus.NewError(idbus.ERR_UNKNOWN_METHOD, nil)
	}
	return nil, nil
}

func (f *fakeBus) record(c fakeCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeBus) Call(dest string, path dbus.ObjectPath, method string, args ...interface{}) ([]interface{}, error) {
	f.record(fakeCall{path: path, method: method, args: args})
	return f.reply(path, method)
}

func (f *fakeBus) CallAsync(dest string, path dbus.ObjectPath, method string, timeout time.Duration, done func([]interface{}, error), args ...interface{}) {
	c := fakeCall{path: path, method: method, timeout: timeout, args: args}
	f.record(c)

	f.mu.Lock()
	hold := f.hold
	if hold {
		f.pending = append(f.pending, pendingCall{c, done})
	}
	f.mu.Unlock()
	if hold {
		return
	}
	body, err := f.reply(path, method)
	done(body, err)
}

// complete finishes the oldest held async call.
func (f *fakeBus) complete(body []interface{}, err error) {
	f.mu.Lock()
	p := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()
	p.done(body, err)
}

func (f *fakeBus) NameOwner(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owner == "" {
		return "", dbus.NewError(idbus.ERR_NAME_HAS_NO_OWN, nil)
	}
	return f.owner, nil
}

func (f *fakeBus) AddMatch(rule string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, rule)
	return nil
}

func (f *fakeBus) RemoveMatch(rule string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = slices.DeleteFunc(f.matches, func(r string) bool { return r == rule })
	return nil
}

func (f *fakeBus) Signal(chan<- *dbus.Signal)       {}
func (f *fakeBus) RemoveSignal(chan<- *dbus.Signal) {}

func (f *fakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported[path] = v
	return nil
}

func (f *fakeBus) Unexport(path dbus.ObjectPath, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exported, path)
	return nil
}

func (f *fakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// callsTo returns the recorded calls of one method, in order.
func (f *fakeBus) callsTo(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// methods returns the recorded method names after index from.
func (f *fakeBus) methods(from int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls[from:] {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeBus) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- helpers ---

func adapterProps(name string, powered bool, devices ...dbus.ObjectPath) map[string]dbus.Variant {
	if devices == nil {
		devices = []dbus.ObjectPath{}
	}
	return map[string]dbus.Variant{
		PROP_ADDRESS:      dbus.MakeVariant("00:00:00:00:00:0" + name[len(name)-1:]),
		PROP_NAME:         dbus.MakeVariant(name),
		PROP_POWERED:      dbus.MakeVariant(powered),
		PROP_DISCOVERABLE: dbus.MakeVariant(false),
		PROP_DISCOVERING:  dbus.MakeVariant(false),
		PROP_DEVICES:      dbus.MakeVariant(devices),
	}
}

func deviceProps(address, alias string, class uint32, uuids ...string) map[string]dbus.Variant {
	if uuids == nil {
		uuids = []string{}
	}
	return map[string]dbus.Variant{
		PROP_ADDRESS:   dbus.MakeVariant(address),
		PROP_ALIAS:     dbus.MakeVariant(alias),
		PROP_NAME:      dbus.MakeVariant(alias),
		PROP_CLASS:     dbus.MakeVariant(class),
		PROP_PAIRED:    dbus.MakeVariant(false),
		PROP_TRUSTED:   dbus.MakeVariant(false),
		PROP_CONNECTED: dbus.MakeVariant(false),
		PROP_UUIDS:     dbus.MakeVariant(uuids),
	}
}

func devPath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	b := []byte(address)
	for i := range b {
		if b[i] == ':' {
			b[i] = '_'
		}
	}
	return adapter + "/dev_" + dbus.ObjectPath(b)
}

func newTestClient(t *testing.T, bus *fakeBus) *Client {
	t.Helper()
	c := newClient(context.Background(), bus, nil, time.Minute)
	t.Cleanup(c.cancel)
	return c
}

// boot runs the bootstrap the way the loop would.
func boot(c *Client) {
	c.bootstrap()
	c.loop.drain()
}

// deliver handles a signal and runs everything it queued.
func deliver(c *Client, sigs ...*dbus.Signal) {
	for _, sig := range sigs {
		c.handleSignal(sig)
		c.loop.drain()
	}
}

func signal(path dbus.ObjectPath, name string, body ...interface{}) *dbus.Signal {
	return &dbus.Signal{Sender: testOwner, Path: path, Name: name, Body: body}
}

func propChanged(path dbus.ObjectPath, iface, name string, value interface{}) *dbus.Signal {
	return signal(path, iface+"."+PROPERTY_CHANGED, name, dbus.MakeVariant(value))
}

// recorder collects changes delivered to a subscriber.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) add(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) kinds() []ChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeKind, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}

// stripIDs removes arena identities so snapshots can be compared across runs.
func stripIDs(devs []Device) []Device {
	out := make([]Device, len(devs))
	for i, d := range devs {
		d.ID, d.AdapterID = 0, 0
		out[i] = d
	}
	return out
}
