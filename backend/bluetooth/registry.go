package bluetooth

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
)

// ChangeKind identifies what a Change describes.
type ChangeKind int

const (
	AdapterAdded ChangeKind = iota
	AdapterChanged
	AdapterRemoved
	DeviceAdded
	DeviceChanged
	DeviceRemoved
	DefaultAdapterChanged
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case AdapterAdded:
		return "adapter-added"
	case AdapterChanged:
		return "adapter-changed"
	case AdapterRemoved:
		return "adapter-removed"
	case DeviceAdded:
		return "device-added"
	case DeviceChanged:
		return "device-changed"
	case DeviceRemoved:
		return "device-removed"
	case DefaultAdapterChanged:
		return "default-adapter-changed"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change is one registry mutation as seen by observers. Adapter is set for
// adapter kinds and for DefaultAdapterChanged (nil when no adapter is the
// default); Device is set for device kinds. Property names the field that
// triggered a *Changed notification when it came from a single property.
type Change struct {
	Kind     ChangeKind
	Adapter  *Adapter
	Device   *Device
	Property string
}

type adapterRow struct {
	Adapter
	children map[EntityID]struct{}
}

type addrKey struct {
	adapter EntityID
	address string
}

// Registry is the live tree of adapters and devices mirrored from the
// daemon. Mutations happen on the client loop only; reads are safe from any
// goroutine.
type Registry struct {
	mu        sync.RWMutex
	nextID    EntityID
	adapters  map[EntityID]*adapterRow
	devices   map[EntityID]*Device
	byPath    map[dbus.ObjectPath]EntityID
	byAddr    map[addrKey]EntityID
	defaultID EntityID

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

func newRegistry() *Registry {
	return &Registry{
		adapters: make(map[EntityID]*adapterRow),
		devices:  make(map[EntityID]*Device),
		byPath:   make(map[dbus.ObjectPath]EntityID),
		byAddr:   make(map[addrKey]EntityID),
		subs:     make(map[int]func(Change)),
	}
}

// Subscribe registers fn for every change. fn runs on the client loop after
// the registry lock is released, so it may read the registry or issue
// commands. The returned func unsubscribes.
func (r *Registry) Subscribe(fn func(Change)) func() {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	r.subMu.Lock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	r.subMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// --- Reads ---

// Adapters returns every adapter, sorted by path.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Adapter)
	}
	slices.SortFunc(out, func(a, b Adapter) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

func (r *Registry) Adapter(path dbus.ObjectPath) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a := r.adapterByPath(path)
	if a == nil {
		return Adapter{}, false
	}
	return a.Adapter, true
}

// DefaultAdapter returns the adapter flagged as default, if any.
func (r *Registry) DefaultAdapter() (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[r.defaultID]; ok {
		return a.Adapter, true
	}
	return Adapter{}, false
}

// Devices returns the devices of one adapter sorted by address. An empty
// path selects the default adapter.
func (r *Registry) Devices(adapterPath dbus.ObjectPath) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a := r.resolveAdapter(adapterPath)
	if a == nil {
		return nil
	}
	return r.childrenOf(a)
}

func (r *Registry) Device(path dbus.ObjectPath) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.deviceByPath(path)
	if d == nil {
		return Device{}, false
	}
	return d.clone(), true
}

// DeviceByAddress looks a device up by address under one adapter (empty
// path: the default adapter).
func (r *Registry) DeviceByAddress(adapterPath dbus.ObjectPath, address string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a := r.resolveAdapter(adapterPath)
	if a == nil {
		return Device{}, false
	}
	d, ok := r.devices[r.byAddr[addrKey{a.ID, normalizeAddress(address)}]]
	if !ok {
		return Device{}, false
	}
	return d.clone(), true
}

// IsAvailable reports whether a device can be interacted with, that is
// whether its adapter is powered.
func (r *Registry) IsAvailable(devicePath dbus.ObjectPath) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.deviceByPath(devicePath)
	if d == nil {
		return false
	}
	a, ok := r.adapters[d.AdapterID]
	return ok && a.Powered
}

func (r *Registry) DefaultAdapterName() string {
	a, _ := r.DefaultAdapter()
	return a.Name
}

func (r *Registry) DefaultAdapterPowered() bool {
	a, _ := r.DefaultAdapter()
	return a.Powered
}

func (r *Registry) DefaultAdapterDiscoverable() bool {
	a, _ := r.DefaultAdapter()
	return a.Discoverable
}

func (r *Registry) DefaultAdapterDiscovering() bool {
	a, _ := r.DefaultAdapter()
	return a.Powered && a.Discovering
}

// --- Lookups, callers hold mu ---

func (r *Registry) adapterByPath(path dbus.ObjectPath) *adapterRow {
	if id, ok := r.byPath[path]; ok {
		return r.adapters[id]
	}
	return nil
}

func (r *Registry) deviceByPath(path dbus.ObjectPath) *Device {
	if path == "" {
		return nil
	}
	if id, ok := r.byPath[path]; ok {
		return r.devices[id]
	}
	return nil
}

func (r *Registry) resolveAdapter(path dbus.ObjectPath) *adapterRow {
	if path == "" {
		return r.adapters[r.defaultID]
	}
	return r.adapterByPath(path)
}

func (r *Registry) childrenOf(a *adapterRow) []Device {
	out := make([]Device, 0, len(a.children))
	for id := range a.children {
		out = append(out, r.devices[id].clone())
	}
	slices.SortFunc(out, func(x, y Device) int { return cmp.Compare(x.Address, y.Address) })
	return out
}

func (r *Registry) allDevices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.clone())
	}
	slices.SortFunc(out, func(x, y Device) int {
		return cmp.Or(cmp.Compare(x.AdapterPath, y.AdapterPath), cmp.Compare(x.Address, y.Address))
	})
	return out
}

func (r *Registry) newID() EntityID {
	r.nextID++
	return r.nextID
}

func normalizeAddress(addr string) string {
	return strings.ToUpper(addr)
}

// --- Mutations, loop only. Each returns the changes to notify. ---

// reset drops every row without per-row notifications.
func (r *Registry) reset() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters = make(map[EntityID]*adapterRow)
	r.devices = make(map[EntityID]*Device)
	r.byPath = make(map[dbus.ObjectPath]EntityID)
	r.byAddr = make(map[addrKey]EntityID)
	r.defaultID = 0
	return []Change{{Kind: Cleared}}
}

func (r *Registry) upsertAdapter(path dbus.ObjectPath, props map[string]dbus.Variant) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := AdapterChanged
	a := r.adapterByPath(path)
	if a == nil {
		kind = AdapterAdded
		a = &adapterRow{
			Adapter:  Adapter{ID: r.newID(), Path: path},
			children: make(map[EntityID]struct{}),
		}
		r.adapters[a.ID] = a
		r.byPath[path] = a.ID
	}
	for name, value := range props {
		applyAdapterProperty(&a.Adapter, name, value)
	}
	snap := a.Adapter
	return []Change{{Kind: kind, Adapter: &snap}}
}

// notifiableAdapterProperties trigger AdapterChanged; others update silently.
var notifiableAdapterProperties = map[string]bool{
	PROP_NAME:         true,
	PROP_POWERED:      true,
	PROP_DISCOVERABLE: true,
	PROP_DISCOVERING:  true,
}

func (r *Registry) adapterProperty(path dbus.ObjectPath, name string, value dbus.Variant) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterByPath(path)
	if a == nil || !applyAdapterProperty(&a.Adapter, name, value) || !notifiableAdapterProperties[name] {
		return nil
	}
	snap := a.Adapter
	return []Change{{Kind: AdapterChanged, Adapter: &snap, Property: name}}
}

// removeAdapter detaches the adapter and its whole subtree.
func (r *Registry) removeAdapter(path dbus.ObjectPath) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterByPath(path)
	if a == nil {
		return nil
	}

	changes := make([]Change, 0, len(a.children)+2)
	for _, d := range r.childrenOf(a) {
		r.detachDevice(d.ID)
		changes = append(changes, Change{Kind: DeviceRemoved, Device: &d})
	}
	delete(r.adapters, a.ID)
	delete(r.byPath, path)

	snap := a.Adapter
	changes = append(changes, Change{Kind: AdapterRemoved, Adapter: &snap})
	if r.defaultID == a.ID {
		r.defaultID = 0
		changes = append(changes, Change{Kind: DefaultAdapterChanged})
	}
	return changes
}

// setDefault moves the is-default flag to path. An unknown path leaves every
// adapter unflagged.
func (r *Registry) setDefault(path dbus.ObjectPath) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []Change
	target := r.adapterByPath(path)
	for _, a := range r.adapters {
		want := a == target
		if a.IsDefault != want {
			a.IsDefault = want
			snap := a.Adapter
			changes = append(changes, Change{Kind: AdapterChanged, Adapter: &snap, Property: "IsDefault"})
		}
	}
	slices.SortFunc(changes, func(x, y Change) int { return cmp.Compare(x.Adapter.Path, y.Adapter.Path) })

	prev := r.defaultID
	r.defaultID = 0
	var snap *Adapter
	if target != nil {
		r.defaultID = target.ID
		s := target.Adapter
		snap = &s
	}
	if prev != r.defaultID || len(changes) > 0 {
		changes = append(changes, Change{Kind: DefaultAdapterChanged, Adapter: snap})
	}
	return changes
}

// upsertDevice inserts or updates a device under adapterPath. path is empty
// for discovery results; those rows are matched by address and promoted when
// the daemon later creates the object.
func (r *Registry) upsertDevice(adapterPath, path dbus.ObjectPath, props map[string]dbus.Variant) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterByPath(adapterPath)
	if a == nil {
		return nil
	}
	address := normalizeAddress(idbus.MapString(props, PROP_ADDRESS))

	d := r.deviceByPath(path)
	if d == nil && address != "" {
		if id, ok := r.byAddr[addrKey{a.ID, address}]; ok {
			if existing := r.devices[id]; existing.Path == "" || path == "" || existing.Path == path {
				d = existing
			}
		}
	}

	kind := DeviceChanged
	if d == nil {
		if address == "" && path == "" {
			return nil
		}
		kind = DeviceAdded
		d = &Device{ID: r.newID(), AdapterID: a.ID, AdapterPath: a.Path, Type: TypeAny}
		r.devices[d.ID] = d
		a.children[d.ID] = struct{}{}
	}
	if path != "" && d.Path != path {
		if d.Path != "" {
			delete(r.byPath, d.Path)
		}
		d.Path = path
		r.byPath[path] = d.ID
	}

	before := d.clone()
	for name, value := range props {
		applyDeviceProperty(d, name, value)
	}
	if d.Address != before.Address {
		if before.Address != "" {
			delete(r.byAddr, addrKey{a.ID, before.Address})
		}
	}
	if d.Address != "" {
		r.byAddr[addrKey{a.ID, d.Address}] = d.ID
	}

	if kind == DeviceChanged && deviceEqual(before, *d) {
		return nil
	}
	snap := d.clone()
	return []Change{{Kind: kind, Device: &snap}}
}

func (r *Registry) deviceProperty(path dbus.ObjectPath, name string, value dbus.Variant) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.deviceByPath(path)
	if d == nil {
		return nil
	}
	oldAddr := d.Address
	if !applyDeviceProperty(d, name, value) {
		return nil
	}
	if d.Address != oldAddr {
		delete(r.byAddr, addrKey{d.AdapterID, oldAddr})
		r.byAddr[addrKey{d.AdapterID, d.Address}] = d.ID
	}
	snap := d.clone()
	return []Change{{Kind: DeviceChanged, Device: &snap, Property: name}}
}

func (r *Registry) removeDevice(path dbus.ObjectPath) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.deviceByPath(path)
	if d == nil {
		return nil
	}
	snap := d.clone()
	r.detachDevice(d.ID)
	return []Change{{Kind: DeviceRemoved, Device: &snap}}
}

// removeDiscovered drops a discovery-only row. Rows backed by a daemon
// object stay until DeviceRemoved.
func (r *Registry) removeDiscovered(adapterPath dbus.ObjectPath, address string) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterByPath(adapterPath)
	if a == nil {
		return nil
	}
	d, ok := r.devices[r.byAddr[addrKey{a.ID, normalizeAddress(address)}]]
	if !ok || d.Path != "" {
		return nil
	}
	snap := d.clone()
	r.detachDevice(d.ID)
	return []Change{{Kind: DeviceRemoved, Device: &snap}}
}

// setServices replaces the derived service map of a device.
func (r *Registry) setServices(path dbus.ObjectPath, services map[string]ServiceStatus) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.deviceByPath(path)
	if d == nil || servicesEqual(d.Services, services) {
		return nil
	}
	d.Services = services
	snap := d.clone()
	return []Change{{Kind: DeviceChanged, Device: &snap, Property: "Services"}}
}

// restoreServices rebuilds the service map from a cached list of interfaces.
// Interfaces still on the row keep their live status; others start
// disconnected.
func (r *Registry) restoreServices(path dbus.ObjectPath, ifaces []string) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.deviceByPath(path)
	if d == nil {
		return nil
	}
	var services map[string]ServiceStatus
	if len(ifaces) > 0 {
		services = make(map[string]ServiceStatus, len(ifaces))
		for _, name := range ifaces {
			services[name] = d.Services[name]
		}
	}
	if servicesEqual(d.Services, services) {
		return nil
	}
	d.Services = services
	snap := d.clone()
	return []Change{{Kind: DeviceChanged, Device: &snap, Property: "Services"}}
}

// setServiceStatus updates one service entry. Interfaces the device was not
// probed for are ignored.
func (r *Registry) setServiceStatus(path dbus.ObjectPath, iface string, status ServiceStatus) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.deviceByPath(path)
	if d == nil {
		return nil
	}
	current, ok := d.Services[iface]
	if !ok || current == status {
		return nil
	}
	d.Services[iface] = status
	snap := d.clone()
	return []Change{{Kind: DeviceChanged, Device: &snap, Property: "Services"}}
}

// detachDevice removes every edge to the device. Callers hold mu.
func (r *Registry) detachDevice(id EntityID) {
	d, ok := r.devices[id]
	if !ok {
		return
	}
	if a, ok := r.adapters[d.AdapterID]; ok {
		delete(a.children, id)
	}
	if d.Path != "" {
		delete(r.byPath, d.Path)
	}
	if r.byAddr[addrKey{d.AdapterID, d.Address}] == id {
		delete(r.byAddr, addrKey{d.AdapterID, d.Address})
	}
	delete(r.devices, id)
}

// applyAdapterProperty sets one named field and reports whether it changed.
func applyAdapterProperty(a *Adapter, name string, value dbus.Variant) bool {
	switch name {
	case PROP_ADDRESS:
		return setIf(&a.Address, value, idbus.ExtractString)
	case PROP_NAME:
		return setIf(&a.Name, value, idbus.ExtractString)
	case PROP_POWERED:
		return setIf(&a.Powered, value, idbus.ExtractBool)
	case PROP_DISCOVERABLE:
		return setIf(&a.Discoverable, value, idbus.ExtractBool)
	case PROP_DISCOVERABLE_TIMEOUT:
		return setIf(&a.DiscoverableTimeout, value, idbus.ExtractUint32)
	case PROP_DISCOVERING:
		return setIf(&a.Discovering, value, idbus.ExtractBool)
	}
	return false
}

// applyDeviceProperty sets one named field and reports whether it changed.
func applyDeviceProperty(d *Device, name string, value dbus.Variant) bool {
	switch name {
	case PROP_ADDRESS:
		s, ok := idbus.ExtractString(value)
		if !ok || normalizeAddress(s) == d.Address {
			return false
		}
		d.Address = normalizeAddress(s)
		return true
	case PROP_ALIAS:
		return setIf(&d.Alias, value, idbus.ExtractString)
	case PROP_NAME:
		return setIf(&d.Name, value, idbus.ExtractString)
	case PROP_ICON:
		return setIf(&d.Icon, value, idbus.ExtractString)
	case PROP_CLASS:
		if !setIf(&d.Class, value, idbus.ExtractUint32) {
			return false
		}
		d.Type = classToType(d.Class)
		return true
	case PROP_PAIRED:
		return setIf(&d.Paired, value, idbus.ExtractBool)
	case PROP_TRUSTED:
		return setIf(&d.Trusted, value, idbus.ExtractBool)
	case PROP_CONNECTED:
		return setIf(&d.Connected, value, idbus.ExtractBool)
	case PROP_LEGACY_PAIRING:
		b, ok := idbus.ExtractBool(value)
		if !ok || legacyPairingFrom(b) == d.LegacyPairing {
			return false
		}
		d.LegacyPairing = legacyPairingFrom(b)
		return true
	case PROP_UUIDS:
		raw, ok := idbus.ExtractStrings(value)
		if !ok {
			return false
		}
		uuids := decodeUUIDs(raw)
		if slices.Equal(uuids, d.UUIDs) {
			return false
		}
		d.UUIDs = uuids
		return true
	}
	return false
}

func setIf[T comparable](field *T, value dbus.Variant, extract func(dbus.Variant) (T, bool)) bool {
	v, ok := extract(value)
	if !ok || *field == v {
		return false
	}
	*field = v
	return true
}

func servicesEqual(a, b map[string]ServiceStatus) bool {
	if (a == nil) != (b == nil) || len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func deviceEqual(a, b Device) bool {
	if !servicesEqual(a.Services, b.Services) || !slices.Equal(a.UUIDs, b.UUIDs) {
		return false
	}
	return a.Path == b.Path && a.Address == b.Address && a.Alias == b.Alias &&
		a.Name == b.Name && a.Icon == b.Icon && a.Class == b.Class && a.Type == b.Type &&
		a.Paired == b.Paired && a.Trusted == b.Trusted && a.Connected == b.Connected &&
		a.LegacyPairing == b.LegacyPairing
}
