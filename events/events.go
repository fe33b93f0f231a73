package events

import "slices"

const (
	TypeServerInfo = "server.info"

	TypeAdapterAdded   = "adapter.added"
	TypeAdapterUpdated = "adapter.updated"
	TypeAdapterRemoved = "adapter.removed"
	TypeDefaultAdapter = "adapter.default"

	TypeDeviceAdded   = "device.added"
	TypeDeviceUpdated = "device.updated"
	TypeDeviceRemoved = "device.removed"

	TypeRegistryCleared = "registry.cleared"

	TypeAgentRequest = "agent.request"
	TypeAgentCancel  = "agent.cancel"

	TypeKillswitchChanged = "killswitch.changed"
)

// BackendTypes maps a backend name to the event types it emits.
var BackendTypes = map[string][]string{
	"bluetooth": {
		TypeAdapterAdded, TypeAdapterUpdated, TypeAdapterRemoved, TypeDefaultAdapter,
		TypeDeviceAdded, TypeDeviceUpdated, TypeDeviceRemoved, TypeRegistryCleared,
	},
	"agent":      {TypeAgentRequest, TypeAgentCancel},
	"killswitch": {TypeKillswitchChanged},
}

type Event struct {
	Type string
	Data any
}

// Filter reports whether an event should be delivered. A nil Filter passes everything.
type Filter func(Event) bool

// FilterTypes passes only the listed event types. Returns nil for an empty list.
func FilterTypes(types []string) Filter {
	if len(types) == 0 {
		return nil
	}
	return func(e Event) bool {
		return slices.Contains(types, e.Type)
	}
}

// FilterBackend passes the event types of the named backends.
// Unknown names are ignored; nil is returned if nothing is known.
func FilterBackend(names []string) Filter {
	var types []string
	for _, name := range names {
		types = append(types, BackendTypes[name]...)
	}
	return FilterTypes(types)
}

// NewFilter combines an include list and an exclude list.
// Empty include means every type not excluded passes.
func NewFilter(include, exclude []string) Filter {
	if len(include) == 0 && len(exclude) == 0 {
		return nil
	}
	return func(e Event) bool {
		if slices.Contains(exclude, e.Type) {
			return false
		}
		return len(include) == 0 || slices.Contains(include, e.Type)
	}
}
