package bluetooth

import (
	"time"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
)

// Transport is the slice of the system bus the client needs. *idbus.Bus
// satisfies it; tests use an in-memory fake.
type Transport interface {
	Call(dest string, path dbus.ObjectPath, method string, args ...interface{}) ([]interface{}, error)
	CallAsync(dest string, path dbus.ObjectPath, method string, timeout time.Duration, done func([]interface{}, error), args ...interface{})
	NameOwner(name string) (string, error)
	AddMatch(rule string) error
	RemoveMatch(rule string) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Unexport(path dbus.ObjectPath, iface string) error
	Close() error
}

var _ Transport = (*idbus.Bus)(nil)

// matchRules subscribes to every BlueZ 4 signal the registry reconciles,
// plus the daemon's bus name ownership.
var matchRules = []string{
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + MANAGER_IFACE + "'",
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + ADAPTER_IFACE + "'",
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + DEVICE_IFACE + "'",
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + HEADSET_IFACE + "',member='" + PROPERTY_CHANGED + "'",
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + AUDIOSINK_IFACE + "',member='" + PROPERTY_CHANGED + "'",
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + AUDIO_IFACE + "',member='" + PROPERTY_CHANGED + "'",
	"type='signal',sender='" + BLUEZ_SERVICE + "',interface='" + INPUT_IFACE + "',member='" + PROPERTY_CHANGED + "'",
	"type='signal',sender='" + idbus.DBUS_SERVICE + "',interface='" + idbus.DBUS_INTERFACE + "',member='NameOwnerChanged',arg0='" + BLUEZ_SERVICE + "'",
}

// getProperties calls <iface>.GetProperties on path and decodes the a{sv} reply.
func getProperties(t Transport, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	body, err := t.Call(BLUEZ_SERVICE, path, iface+"."+GET_PROPERTIES)
	if err != nil {
		return nil, err
	}
	var props map[string]dbus.Variant
	if err := dbus.Store(body, &props); err != nil {
		return nil, err
	}
	return props, nil
}
