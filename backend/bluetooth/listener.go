package bluetooth

import (
	"maps"
	"strings"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// bootstrap enumerates adapters and their devices and marks the default
// adapter. It runs on the loop; per-adapter failures leave that adapter out
// of the registry without aborting the others.
func (c *Client) bootstrap() {
	owner, err := c.transport.NameOwner(BLUEZ_SERVICE)
	if err != nil {
		logger.Warn("[bluetooth] %s is not running: %v", BLUEZ_SERVICE, err)
		return
	}
	c.owner = owner

	body, err := c.transport.Call(BLUEZ_SERVICE, BLUEZ_ROOT, LIST_ADAPTERS)
	if err != nil {
		logger.Warn("[bluetooth] failed to list adapters: %v", err)
		return
	}
	var paths []dbus.ObjectPath
	if err := dbus.Store(body, &paths); err != nil {
		logger.Warn("[bluetooth] unexpected ListAdapters reply: %v", err)
		return
	}

	for _, path := range paths {
		c.addAdapter(path)
	}
	c.refreshDefault()

	logger.Info("[bluetooth] registry loaded: %d adapter(s)", len(c.registry.Adapters()))

	c.attachAgent()
}

// attachAgent keeps the configured agent registered with the default adapter.
func (c *Client) attachAgent() {
	if a := c.Agent(); a != nil {
		if err := a.attach(); err != nil {
			logger.Warn("[bluetooth] failed to register agent: %v", err)
		}
	}
}

// addAdapter fetches an adapter and its known devices, then inserts the
// whole subtree at once.
func (c *Client) addAdapter(path dbus.ObjectPath) {
	props, err := getProperties(c.transport, path, ADAPTER_IFACE)
	if err != nil {
		if idbus.IsObjectGone(err) {
			logger.Debug("[bluetooth] adapter %s vanished before it was read", path)
		} else {
			logger.Warn("[bluetooth] skipping adapter %s: %v", path, err)
		}
		return
	}

	type pending struct {
		path  dbus.ObjectPath
		props map[string]dbus.Variant
	}
	var devices []pending
	for _, devPath := range idbus.MapPaths(props, PROP_DEVICES) {
		devProps, err := getProperties(c.transport, devPath, DEVICE_IFACE)
		if err != nil {
			if idbus.IsObjectGone(err) {
				continue
			}
			logger.Warn("[bluetooth] skipping adapter %s: device %s: %v", path, devPath, err)
			return
		}
		devices = append(devices, pending{devPath, devProps})
	}

	c.apply(c.registry.upsertAdapter(path, props))
	for _, d := range devices {
		c.apply(c.registry.upsertDevice(path, d.path, d.props))
		c.refreshServices(d.path)
	}
}

func (c *Client) refreshDefault() {
	body, err := c.transport.Call(BLUEZ_SERVICE, BLUEZ_ROOT, DEFAULT_ADAPTER)
	if err != nil {
		logger.Debug("[bluetooth] no default adapter: %v", err)
		c.apply(c.registry.setDefault(""))
		return
	}
	var path dbus.ObjectPath
	if err := dbus.Store(body, &path); err != nil {
		logger.Warn("[bluetooth] unexpected DefaultAdapter reply: %v", err)
		return
	}
	c.apply(c.registry.setDefault(path))
}

// handleSignal reconciles one daemon signal into the registry.
func (c *Client) handleSignal(sig *dbus.Signal) {
	if sig.Name == idbus.NAME_OWNER_CHANGED {
		c.handleNameOwnerChanged(sig)
		return
	}
	if c.owner != "" && sig.Sender != c.owner {
		logger.Debug("[bluetooth] ignoring %s from %s", sig.Name, sig.Sender)
		return
	}

	logger.Debug("[bluetooth] received signal: %s on %s", sig.Name, sig.Path)

	switch sig.Name {
	case ADAPTER_ADDED:
		if path, err := idbus.PathArg(sig, 0); err == nil {
			c.addAdapter(path)
			if _, ok := c.registry.DefaultAdapter(); !ok {
				c.refreshDefault()
			}
			c.attachAgent()
		}
	case ADAPTER_REMOVED:
		if path, err := idbus.PathArg(sig, 0); err == nil {
			for _, d := range c.registry.Devices(path) {
				c.probes.Delete(d.Path)
			}
			if a := c.Agent(); a != nil {
				a.adapterGone(path)
			}
			c.apply(c.registry.removeAdapter(path))
		}
	case DEFAULT_ADAPTER_CHANGED:
		if path, err := idbus.PathArg(sig, 0); err == nil {
			c.apply(c.registry.setDefault(path))
			c.attachAgent()
		}
	case ADAPTER_PROP_CHANGED:
		name, value, err := idbus.PropertyChange(sig)
		if err != nil {
			logger.Debug("[bluetooth] %v", err)
			return
		}
		c.apply(c.registry.adapterProperty(sig.Path, name, value))
	case DEVICE_CREATED:
		if path, err := idbus.PathArg(sig, 0); err == nil {
			c.deviceCreated(sig.Path, path)
		}
	case DEVICE_REMOVED:
		if path, err := idbus.PathArg(sig, 0); err == nil {
			c.probes.Delete(path)
			c.apply(c.registry.removeDevice(path))
		}
	case DEVICE_FOUND:
		c.deviceFound(sig)
	case DEVICE_DISAPPEARED:
		if address, err := idbus.StringArg(sig, 0); err == nil {
			c.apply(c.registry.removeDiscovered(sig.Path, address))
		}
	case DEVICE_PROP_CHANGED:
		c.devicePropertyChanged(sig)
	default:
		if iface, ok := strings.CutSuffix(sig.Name, "."+PROPERTY_CHANGED); ok && c.catalog.Has(iface) {
			c.servicePropertyChanged(iface, sig)
			return
		}
		logger.Debug("[bluetooth] unhandled signal: %s", sig.Name)
	}
}

// handleNameOwnerChanged hard-resets the registry when the daemon goes away
// and rebuilds it when a new instance takes the name.
func (c *Client) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name != BLUEZ_SERVICE {
		return
	}

	logger.Info("[bluetooth] %s owner changed to %q", BLUEZ_SERVICE, newOwner)
	c.owner = ""
	c.probes.Clear()
	c.apply(c.registry.reset())
	if a := c.Agent(); a != nil {
		a.forgetOwner()
	}
	if newOwner != "" {
		c.bootstrap()
	}
}

func (c *Client) deviceCreated(adapterPath, path dbus.ObjectPath) {
	props, err := getProperties(c.transport, path, DEVICE_IFACE)
	if err != nil {
		if !idbus.IsObjectGone(err) {
			logger.Warn("[bluetooth] failed to read device %s: %v", path, err)
		}
		return
	}
	c.apply(c.registry.upsertDevice(adapterPath, path, props))
	c.refreshServices(path)
}

func (c *Client) deviceFound(sig *dbus.Signal) {
	address, err := idbus.StringArg(sig, 0)
	if err != nil || len(sig.Body) < 2 {
		return
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		logger.Debug("[bluetooth] DeviceFound for %s without properties", address)
		return
	}
	if _, ok := props[PROP_ADDRESS]; !ok {
		// The signal body may be shared with other subscribers.
		props = maps.Clone(props)
		props[PROP_ADDRESS] = dbus.MakeVariant(address)
	}
	c.apply(c.registry.upsertDevice(sig.Path, "", props))
}

func (c *Client) devicePropertyChanged(sig *dbus.Signal) {
	name, value, err := idbus.PropertyChange(sig)
	if err != nil {
		logger.Debug("[bluetooth] %v", err)
		return
	}
	changes := c.registry.deviceProperty(sig.Path, name, value)
	c.apply(changes)
	if name == PROP_UUIDS && len(changes) > 0 {
		c.probes.Delete(sig.Path)
		c.refreshServices(sig.Path)
	}
}

func (c *Client) servicePropertyChanged(iface string, sig *dbus.Signal) {
	name, value, err := idbus.PropertyChange(sig)
	if err != nil {
		logger.Debug("[bluetooth] %v", err)
		return
	}
	var status ServiceStatus
	switch name {
	case PROP_STATE:
		state, _ := idbus.ExtractString(value)
		status = serviceStatusFromState(state)
	case PROP_CONNECTED:
		if connected, _ := idbus.ExtractBool(value); connected {
			status = ServiceConnected
		}
	default:
		return
	}
	c.apply(c.registry.setServiceStatus(sig.Path, iface, status))
}
