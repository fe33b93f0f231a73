package bluetooth

import (
	"maps"
	"slices"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// refreshServices probes the device's service interfaces and stores the
// result on its row. Within the cache TTL only the set of interfaces is
// reused; statuses already on the row are kept since the daemon keeps them
// current through PropertyChanged.
func (c *Client) refreshServices(path dbus.ObjectPath) {
	if path == "" {
		return
	}
	if ifaces, ok := c.probes.Get(path); ok {
		c.apply(c.registry.restoreServices(path, ifaces))
		return
	}
	services := c.probeServices(path)
	c.probes.Set(path, slices.Sorted(maps.Keys(services)))
	c.apply(c.registry.setServices(path, services))
}

// probeServices walks the catalog in order, asking each candidate interface
// for its properties. The result is nil when nothing answered.
func (c *Client) probeServices(path dbus.ObjectPath) map[string]ServiceStatus {
	var found map[string]ServiceStatus
	for _, rule := range c.catalog.Interfaces {
		if !rule.shouldProbe(found) {
			continue
		}
		props, err := getProperties(c.transport, path, rule.Name)
		if err != nil {
			if !idbus.IsObjectGone(err) {
				logger.Debug("[bluetooth] probing %s on %s: %v", rule.Name, path, err)
			}
			continue
		}
		if found == nil {
			found = make(map[string]ServiceStatus)
		}
		found[rule.Name] = statusFromProperties(props)
	}
	return found
}

func statusFromProperties(props map[string]dbus.Variant) ServiceStatus {
	if state := idbus.MapString(props, PROP_STATE); state != "" {
		return serviceStatusFromState(state)
	}
	if idbus.MapBool(props, PROP_CONNECTED) {
		return ServiceConnected
	}
	return ServiceDisconnected
}
