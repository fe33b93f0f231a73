package bluetooth

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/logger"
)

// Commands never block: they are posted to the loop, issue asynchronous
// calls and deliver their result to done on the loop. done may be nil.

// callAsync issues a daemon call whose completion runs on the loop.
func (c *Client) callAsync(path dbus.ObjectPath, method string, timeout time.Duration, done func([]interface{}, error), args ...interface{}) {
	c.transport.CallAsync(BLUEZ_SERVICE, path, method, timeout, func(body []interface{}, err error) {
		c.loop.post(func() {
			if done != nil {
				done(body, err)
			}
		})
	}, args...)
}

func errOnly(done func(error)) func([]interface{}, error) {
	return func(_ []interface{}, err error) {
		if done != nil {
			done(err)
		}
	}
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

// CreateDevice asks the default adapter to create (and with an agent path,
// pair) the device at address. A stale paired record for the same address
// is removed first when pairing.
func (c *Client) CreateDevice(address string, agentPath dbus.ObjectPath, done func(dbus.ObjectPath, error)) {
	if done == nil {
		done = func(dbus.ObjectPath, error) {}
	}
	c.loop.post(func() {
		adapter, ok := c.registry.DefaultAdapter()
		if !ok {
			done("", ErrNoDefaultAdapter)
			return
		}

		create := func() {
			reply := func(body []interface{}, err error) {
				if err != nil {
					done("", err)
					return
				}
				var path dbus.ObjectPath
				if err := dbus.Store(body, &path); err != nil {
					done("", err)
					return
				}
				done(path, nil)
			}
			if agentPath != "" {
				logger.Info("[bluetooth] pairing %s on %s", address, adapter.Path)
				c.callAsync(adapter.Path, CREATE_PAIRED_DEVICE, CREATE_PAIRED_DEVICE_TIMEOUT, reply, address, agentPath, AGENT_CAPABILITY)
				return
			}
			logger.Info("[bluetooth] creating %s on %s", address, adapter.Path)
			c.callAsync(adapter.Path, CREATE_DEVICE, CREATE_DEVICE_TIMEOUT, reply, address)
		}

		if agentPath != "" {
			if d, ok := c.registry.DeviceByAddress(adapter.Path, address); ok && d.Paired && d.Path != "" {
				logger.Debug("[bluetooth] removing stale record %s before pairing", d.Path)
				c.callAsync(adapter.Path, REMOVE_DEVICE, 0, func(_ []interface{}, err error) {
					if err != nil {
						logger.Warn("[bluetooth] failed to remove stale device %s: %v", d.Path, err)
					}
					create()
				}, d.Path)
				return
			}
		}
		create()
	})
}

// ConnectService connects the most preferred connectable service of the
// device. The service reads Connecting until the daemon reports otherwise.
func (c *Client) ConnectService(devicePath dbus.ObjectPath, done func(error)) {
	c.loop.post(func() {
		d, ok := c.registry.Device(devicePath)
		if !ok {
			finish(done, ErrDeviceNotFound)
			return
		}
		iface, ok := c.catalog.connectCandidate(d.Services)
		if !ok {
			finish(done, ErrNoConnectableService)
			return
		}

		logger.Info("[bluetooth] connecting %s via %s", devicePath, iface)
		c.apply(c.registry.setServiceStatus(devicePath, iface, ServiceConnecting))
		c.callAsync(devicePath, iface+"."+CONNECT, SERVICE_TIMEOUT, func(_ []interface{}, err error) {
			if err != nil {
				logger.Warn("[bluetooth] connect %s via %s failed: %v", devicePath, iface, err)
				c.apply(c.registry.setServiceStatus(devicePath, iface, ServiceDisconnected))
			}
			finish(done, err)
		})
	})
}

// DisconnectService tears down every service of the device, least preferred
// first, one after the other. Only the last result reaches done. A device
// without services is disconnected as a whole.
func (c *Client) DisconnectService(devicePath dbus.ObjectPath, done func(error)) {
	c.loop.post(func() {
		d, ok := c.registry.Device(devicePath)
		if !ok {
			finish(done, ErrDeviceNotFound)
			return
		}

		order := c.catalog.disconnectOrder(d.Services)
		if len(order) == 0 {
			c.callAsync(devicePath, DEVICE_DISCONNECT, 0, errOnly(done))
			return
		}

		var step func(i int)
		step = func(i int) {
			iface := order[i]
			logger.Debug("[bluetooth] disconnecting %s from %s", iface, devicePath)
			c.callAsync(devicePath, iface+"."+DISCONNECT, SERVICE_TIMEOUT, func(_ []interface{}, err error) {
				if i+1 < len(order) {
					if err != nil {
						logger.Debug("[bluetooth] disconnect %s on %s: %v", iface, devicePath, err)
					}
					step(i + 1)
					return
				}
				finish(done, err)
			})
		}
		step(0)
	})
}

// SetTrusted writes the Trusted property of a device.
func (c *Client) SetTrusted(devicePath dbus.ObjectPath, trusted bool, done func(error)) {
	c.loop.post(func() {
		if _, ok := c.registry.Device(devicePath); !ok {
			finish(done, ErrDeviceNotFound)
			return
		}
		c.callAsync(devicePath, DEVICE_SET_PROPERTY, 0, errOnly(done), PROP_TRUSTED, dbus.MakeVariant(trusted))
	})
}

// SetDiscoverable toggles discoverability of the default adapter and pins
// its timeout to zero (no timeout) once the first write succeeds.
func (c *Client) SetDiscoverable(discoverable bool, done func(error)) {
	c.loop.post(func() {
		adapter, ok := c.registry.DefaultAdapter()
		if !ok {
			finish(done, ErrNoDefaultAdapter)
			return
		}
		c.callAsync(adapter.Path, ADAPTER_SET_PROPERTY, 0, func(_ []interface{}, err error) {
			if err != nil {
				finish(done, err)
				return
			}
			c.callAsync(adapter.Path, ADAPTER_SET_PROPERTY, 0, errOnly(done), PROP_DISCOVERABLE_TIMEOUT, dbus.MakeVariant(uint32(0)))
		}, PROP_DISCOVERABLE, dbus.MakeVariant(discoverable))
	})
}

// SetPowered writes Powered on an adapter (empty path: the default one).
func (c *Client) SetPowered(adapterPath dbus.ObjectPath, powered bool, done func(error)) {
	c.onAdapter(adapterPath, done, func(a Adapter) {
		c.callAsync(a.Path, ADAPTER_SET_PROPERTY, 0, errOnly(done), PROP_POWERED, dbus.MakeVariant(powered))
	})
}

// StartDiscovery starts an inquiry on the default adapter.
func (c *Client) StartDiscovery(done func(error)) {
	c.onAdapter("", done, func(a Adapter) {
		c.callAsync(a.Path, START_DISCOVERY, 0, errOnly(done))
	})
}

// StopDiscovery stops the inquiry on the default adapter.
func (c *Client) StopDiscovery(done func(error)) {
	c.onAdapter("", done, func(a Adapter) {
		c.callAsync(a.Path, STOP_DISCOVERY, 0, errOnly(done))
	})
}

// RemoveDevice asks the device's adapter to forget it.
func (c *Client) RemoveDevice(devicePath dbus.ObjectPath, done func(error)) {
	c.loop.post(func() {
		d, ok := c.registry.Device(devicePath)
		if !ok {
			finish(done, ErrDeviceNotFound)
			return
		}
		logger.Info("[bluetooth] removing %s", devicePath)
		c.callAsync(d.AdapterPath, REMOVE_DEVICE, 0, errOnly(done), devicePath)
	})
}

func (c *Client) onAdapter(path dbus.ObjectPath, done func(error), fn func(Adapter)) {
	c.loop.post(func() {
		var (
			a  Adapter
			ok bool
		)
		if path == "" {
			a, ok = c.registry.DefaultAdapter()
			if !ok {
				finish(done, ErrNoDefaultAdapter)
				return
			}
		} else if a, ok = c.registry.Adapter(path); !ok {
			finish(done, ErrAdapterNotFound)
			return
		}
		fn(a)
	})
}
