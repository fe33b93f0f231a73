package bluetooth

import (
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Category selects devices by pairing and trust state.
type Category int

const (
	CategoryAll Category = iota
	CategoryPaired
	CategoryTrusted
	CategoryNotPairedOrTrusted
	CategoryPairedOrTrusted
)

var categoryNames = map[Category]string{
	CategoryAll:                "all",
	CategoryPaired:             "paired",
	CategoryTrusted:            "trusted",
	CategoryNotPairedOrTrusted: "not-paired-or-trusted",
	CategoryPairedOrTrusted:    "paired-or-trusted",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCategory accepts the names returned by Category.String; "" is all.
func ParseCategory(s string) (Category, bool) {
	if s == "" {
		return CategoryAll, true
	}
	for c, name := range categoryNames {
		if strings.EqualFold(s, name) {
			return c, true
		}
	}
	return CategoryAll, false
}

func (c Category) matches(d Device) bool {
	switch c {
	case CategoryPaired:
		return d.Paired
	case CategoryTrusted:
		return d.Trusted
	case CategoryNotPairedOrTrusted:
		return !d.Paired && !d.Trusted
	case CategoryPairedOrTrusted:
		return d.Paired || d.Trusted
	default:
		return true
	}
}

// Filter is the predicate of a device view. An empty AdapterPath follows the
// default adapter; zero Types selects every type; an empty ServiceUUID
// requires nothing.
type Filter struct {
	AdapterPath dbus.ObjectPath
	Types       DeviceType
	Category    Category
	ServiceUUID string
}

// Match applies every predicate except the adapter one.
func (f Filter) Match(d Device) bool {
	if !d.Type.Matches(f.Types) || !f.Category.matches(d) {
		return false
	}
	return f.ServiceUUID == "" || d.HasUUID(f.ServiceUUID)
}

// DeviceView is a filtered pass-through of the registry's device changes.
// Observers see DeviceAdded/DeviceRemoved when a row enters or leaves the
// view and DeviceChanged only for rows inside it.
type DeviceView struct {
	registry *Registry
	filter   Filter
	cancel   func()

	mu      sync.Mutex
	members map[EntityID]Device
	subs    []func(Change)
}

// NewDeviceView creates a view and subscribes it to the registry. Close it
// when done.
func (r *Registry) NewDeviceView(f Filter) *DeviceView {
	v := &DeviceView{registry: r, filter: f, members: make(map[EntityID]Device)}
	v.cancel = r.Subscribe(v.handle)

	v.mu.Lock()
	for _, d := range v.current() {
		v.members[d.ID] = d
	}
	v.mu.Unlock()
	return v
}

func (v *DeviceView) Filter() Filter {
	return v.filter
}

// Devices returns the rows currently passing the filter.
func (v *DeviceView) Devices() []Device {
	return v.current()
}

func (v *DeviceView) current() []Device {
	return slices.DeleteFunc(v.registry.Devices(v.filter.AdapterPath), func(d Device) bool { return !v.filter.Match(d) })
}

// Subscribe registers an observer for the view's changes. Observers run on
// the client loop.
func (v *DeviceView) Subscribe(fn func(Change)) {
	v.mu.Lock()
	v.subs = append(v.subs, fn)
	v.mu.Unlock()
}

// Close detaches the view from the registry.
func (v *DeviceView) Close() {
	v.cancel()
}

func (v *DeviceView) inScope(d Device) bool {
	if v.filter.AdapterPath != "" {
		return d.AdapterPath == v.filter.AdapterPath
	}
	def, ok := v.registry.DefaultAdapter()
	return ok && def.ID == d.AdapterID
}

func (v *DeviceView) handle(c Change) {
	var out []Change

	v.mu.Lock()
	switch c.Kind {
	case DeviceAdded, DeviceChanged, DeviceRemoved:
		d := *c.Device
		_, was := v.members[d.ID]
		now := c.Kind != DeviceRemoved && v.inScope(d) && v.filter.Match(d)
		switch {
		case !was && now:
			v.members[d.ID] = d
			out = append(out, Change{Kind: DeviceAdded, Device: c.Device})
		case was && !now:
			delete(v.members, d.ID)
			out = append(out, Change{Kind: DeviceRemoved, Device: c.Device})
		case was && now:
			v.members[d.ID] = d
			out = append(out, Change{Kind: DeviceChanged, Device: c.Device, Property: c.Property})
		}
	case Cleared:
		v.members = make(map[EntityID]Device)
		out = append(out, c)
	case DefaultAdapterChanged:
		if v.filter.AdapterPath == "" {
			out = v.resync()
		}
	}
	subs := slices.Clone(v.subs)
	v.mu.Unlock()

	for _, ch := range out {
		for _, fn := range subs {
			fn(ch)
		}
	}
}

// resync recomputes membership from scratch, returning the difference.
// Callers hold mu.
func (v *DeviceView) resync() []Change {
	var out []Change
	next := make(map[EntityID]Device)
	for _, d := range v.current() {
		next[d.ID] = d
		if _, ok := v.members[d.ID]; !ok {
			out = append(out, Change{Kind: DeviceAdded, Device: &d})
		}
	}
	for id, d := range v.members {
		if _, ok := next[id]; !ok {
			out = append(out, Change{Kind: DeviceRemoved, Device: &d})
		}
	}
	v.members = next
	return out
}

// AdapterView passes through adapter changes only.
type AdapterView struct {
	registry *Registry
	cancel   func()

	mu   sync.Mutex
	subs []func(Change)
}

func (r *Registry) NewAdapterView() *AdapterView {
	v := &AdapterView{registry: r}
	v.cancel = r.Subscribe(v.handle)
	return v
}

func (v *AdapterView) Adapters() []Adapter {
	return v.registry.Adapters()
}

func (v *AdapterView) Subscribe(fn func(Change)) {
	v.mu.Lock()
	v.subs = append(v.subs, fn)
	v.mu.Unlock()
}

func (v *AdapterView) Close() {
	v.cancel()
}

func (v *AdapterView) handle(c Change) {
	switch c.Kind {
	case AdapterAdded, AdapterChanged, AdapterRemoved, DefaultAdapterChanged, Cleared:
	default:
		return
	}
	v.mu.Lock()
	subs := slices.Clone(v.subs)
	v.mu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}
