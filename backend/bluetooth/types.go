package bluetooth

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

// EntityID identifies an Adapter or Device row in the registry arena.
type EntityID uint64

// LegacyPairing is the tri-state LegacyPairing device property.
type LegacyPairing int

const (
	LegacyPairingUnknown LegacyPairing = iota
	LegacyPairingTrue
	LegacyPairingFalse
)

func (l LegacyPairing) String() string {
	switch l {
	case LegacyPairingTrue:
		return "true"
	case LegacyPairingFalse:
		return "false"
	default:
		return "unknown"
	}
}

func (l LegacyPairing) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func legacyPairingFrom(v bool) LegacyPairing {
	if v {
		return LegacyPairingTrue
	}
	return LegacyPairingFalse
}

// ServiceStatus is the connection state of one service interface of a device.
type ServiceStatus int

const (
	ServiceDisconnected ServiceStatus = iota
	ServiceConnecting
	ServiceConnected
)

func (s ServiceStatus) String() string {
	switch s {
	case ServiceConnecting:
		return "connecting"
	case ServiceConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s ServiceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// serviceStatusFromState maps a service interface State string.
func serviceStatusFromState(state string) ServiceStatus {
	switch strings.ToLower(state) {
	case "connected", "playing":
		return ServiceConnected
	case "connecting":
		return ServiceConnecting
	default:
		return ServiceDisconnected
	}
}

// Adapter is a snapshot of one local Bluetooth controller.
type Adapter struct {
	ID                  EntityID        `json:"-"`
	Path                dbus.ObjectPath `json:"path"`
	Address             string          `json:"address"`
	Name                string          `json:"name"`
	Powered             bool            `json:"powered"`
	Discoverable        bool            `json:"discoverable"`
	DiscoverableTimeout uint32          `json:"discoverable_timeout"`
	Discovering         bool            `json:"discovering"`
	IsDefault           bool            `json:"is_default"`
}

// Device is a snapshot of one remote device known to an adapter.
// Path is empty for devices only seen through discovery.
type Device struct {
	ID            EntityID                 `json:"-"`
	AdapterID     EntityID                 `json:"-"`
	AdapterPath   dbus.ObjectPath          `json:"adapter"`
	Path          dbus.ObjectPath          `json:"path,omitempty"`
	Address       string                   `json:"address"`
	Alias         string                   `json:"alias,omitempty"`
	Name          string                   `json:"name,omitempty"`
	Icon          string                   `json:"icon"`
	Class         uint32                   `json:"class"`
	Type          DeviceType               `json:"type"`
	Paired        bool                     `json:"paired"`
	Trusted       bool                     `json:"trusted"`
	Connected     bool                     `json:"connected"`
	LegacyPairing LegacyPairing            `json:"legacy_pairing"`
	Services      map[string]ServiceStatus `json:"services,omitempty"`
	UUIDs         []string                 `json:"uuids,omitempty"`
}

// DisplayName prefers the alias, then the remote name, then the address.
func (d Device) DisplayName() string {
	switch {
	case d.Alias != "":
		return d.Alias
	case d.Name != "":
		return d.Name
	default:
		return d.Address
	}
}

// HasUUID reports whether the device advertises the given short service name.
func (d Device) HasUUID(name string) bool {
	return slices.ContainsFunc(d.UUIDs, func(u string) bool {
		return strings.EqualFold(u, name)
	})
}

func (d Device) clone() Device {
	d.UUIDs = slices.Clone(d.UUIDs)
	if d.Services != nil {
		d.Services = maps.Clone(d.Services)
	}
	return d
}

var (
	ErrNoDefaultAdapter     = errors.New("bluetooth: no default adapter")
	ErrDeviceNotFound       = errors.New("bluetooth: device not found")
	ErrAdapterNotFound      = errors.New("bluetooth: adapter not found")
	ErrNoConnectableService = errors.New("bluetooth: no connectable service")
	ErrClosed               = errors.New("bluetooth: client closed")
)
