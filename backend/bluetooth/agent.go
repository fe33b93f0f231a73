package bluetooth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

var (
	// ErrSenderMismatch rejects calls that do not come from the daemon.
	ErrSenderMismatch = errors.New("bluetooth: permission denied")
	// ErrNotHandled is returned when no handler is set for an operation.
	ErrNotHandled = errors.New("bluetooth: agent operation not handled")
	// ErrRejected is a deliberate refusal by the application or the user.
	ErrRejected = errors.New("bluetooth: rejected")
	// ErrCanceled reports that the application canceled the request.
	ErrCanceled = errors.New("bluetooth: canceled")
	// ErrAgentReleased is returned by Setup/Register after the daemon released the agent.
	ErrAgentReleased = errors.New("bluetooth: agent released")
)

// DeviceProxy is a transient handle on the device a pairing request is
// about, valid for the duration of the call.
type DeviceProxy struct {
	Path      dbus.ObjectPath
	Adapter   dbus.ObjectPath
	transport Transport
}

// Properties reads the device's current properties from the daemon.
func (p *DeviceProxy) Properties() (map[string]dbus.Variant, error) {
	return getProperties(p.transport, p.Path, DEVICE_IFACE)
}

// Address returns the device address, or "" when it cannot be read.
func (p *DeviceProxy) Address() string {
	props, err := p.Properties()
	if err != nil {
		return ""
	}
	return idbus.MapString(props, PROP_ADDRESS)
}

// AgentHandlers are the application decisions the agent delegates to. A nil
// handler makes the matching operation fail with NotSupported.
type AgentHandlers struct {
	PinCode        func(dev *DeviceProxy) (string, error)
	Passkey        func(dev *DeviceProxy) (uint32, error)
	DisplayPasskey func(dev *DeviceProxy, passkey uint32, entered uint8) error
	Confirm        func(dev *DeviceProxy, passkey uint32) (bool, error)
	Authorize      func(dev *DeviceProxy, uuid string) (bool, error)
	Cancel         func()
}

// Agent is the pairing callback object the daemon invokes. Every inbound
// call except Release is checked against the daemon's bus name.
type Agent struct {
	client   *Client
	handlers AgentHandlers

	mu       sync.Mutex
	path     dbus.ObjectPath
	adapter  dbus.ObjectPath
	owner    string
	exported bool
	released bool
}

// NewAgent creates an agent using the client's connection. Handlers are
// fixed for the agent's lifetime.
func NewAgent(c *Client, h AgentHandlers) *Agent {
	a := &Agent{client: c, handlers: h}
	if c.agentCfg != nil {
		a.path = dbus.ObjectPath(c.agentCfg.Path)
	}
	return a
}

// Setup exports the agent at path without registering it with an adapter.
func (a *Agent) Setup(path dbus.ObjectPath) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setupLocked(path)
}

func (a *Agent) setupLocked(path dbus.ObjectPath) error {
	if a.released {
		return ErrAgentReleased
	}
	if !path.IsValid() {
		return fmt.Errorf("invalid agent path %q", path)
	}
	owner, err := a.client.transport.NameOwner(BLUEZ_SERVICE)
	if err != nil {
		return fmt.Errorf("resolve %s owner: %w", BLUEZ_SERVICE, err)
	}
	if a.exported && a.path != path {
		if err := a.client.transport.Unexport(a.path, AGENT_IFACE); err != nil {
			logger.Debug("[bluetooth] unexport agent %s: %v", a.path, err)
		}
		a.exported = false
	}
	if !a.exported {
		if err := a.client.transport.Export(&agentObject{agent: a}, path, AGENT_IFACE); err != nil {
			return fmt.Errorf("export agent: %w", err)
		}
		a.exported = true
	}
	a.path = path
	a.owner = owner
	logger.Debug("[bluetooth] agent exported at %s", path)
	return nil
}

// Register sets the agent up if needed and registers it with adapter (empty:
// the default adapter) using the DisplayYesNo capability.
func (a *Agent) Register(adapter dbus.ObjectPath) error {
	if adapter == "" {
		def, ok := a.client.registry.DefaultAdapter()
		if !ok {
			return ErrNoDefaultAdapter
		}
		adapter = def.Path
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.setupLocked(a.path); err != nil {
		return err
	}
	if _, err := a.client.transport.Call(BLUEZ_SERVICE, adapter, REGISTER_AGENT, a.path, AGENT_CAPABILITY); err != nil {
		return fmt.Errorf("register agent on %s: %w", adapter, err)
	}
	a.adapter = adapter
	logger.Info("[bluetooth] agent %s registered on %s", a.path, adapter)
	return nil
}

// Unregister removes the agent from its adapter and unexports it. A daemon
// that already forgot the agent is not an error.
func (a *Agent) Unregister() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.adapter != "" {
		if _, callErr := a.client.transport.Call(BLUEZ_SERVICE, a.adapter, UNREGISTER_AGENT, a.path); callErr != nil && !idbus.IsObjectGone(callErr) {
			err = fmt.Errorf("unregister agent: %w", callErr)
		}
		a.adapter = ""
	}
	a.unexportLocked()
	return err
}

// Path returns the bus path the agent is exported at.
func (a *Agent) Path() dbus.ObjectPath {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Released reports whether the daemon has released the agent.
func (a *Agent) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// Registered reports whether the agent is currently registered with an
// adapter and can serve pairing requests.
func (a *Agent) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adapter != "" && !a.released
}

// Adapter returns the adapter the agent is registered with, or "".
func (a *Agent) Adapter() dbus.ObjectPath {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adapter
}

// attach moves the agent registration to the current default adapter. It is
// a no-op when the agent is already registered there. Runs on the loop.
func (a *Agent) attach() error {
	def, ok := a.client.registry.DefaultAdapter()

	a.mu.Lock()
	current, released := a.adapter, a.released
	a.mu.Unlock()

	switch {
	case released:
		return nil
	case !ok:
		logger.Debug("[bluetooth] no default adapter, agent not registered")
		return nil
	case current == def.Path:
		return nil
	case current != "":
		a.detach(current)
	}
	return a.Register(def.Path)
}

// detach unregisters the agent from adapter while keeping it exported.
func (a *Agent) detach(adapter dbus.ObjectPath) {
	if _, err := a.client.transport.Call(BLUEZ_SERVICE, adapter, UNREGISTER_AGENT, a.Path()); err != nil {
		logger.Debug("[bluetooth] unregister agent from %s: %v", adapter, err)
	}
	a.adapterGone(adapter)
}

// adapterGone forgets the registration when its adapter disappears.
func (a *Agent) adapterGone(adapter dbus.ObjectPath) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adapter == adapter {
		a.adapter = ""
	}
}

// forgetOwner drops the recorded daemon identity so no call is accepted
// until the agent is registered again.
func (a *Agent) forgetOwner() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owner = ""
	a.adapter = ""
}

func (a *Agent) unexportLocked() {
	if !a.exported {
		return
	}
	if err := a.client.transport.Unexport(a.path, AGENT_IFACE); err != nil {
		logger.Debug("[bluetooth] unexport agent %s: %v", a.path, err)
	}
	a.exported = false
}

// verify checks the sender of an inbound call against the daemon's name.
func (a *Agent) verify(sender dbus.Sender) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner == "" || string(sender) != a.owner {
		logger.Warn("[bluetooth] rejecting agent call from %s", sender)
		return ErrSenderMismatch
	}
	return nil
}

func (a *Agent) proxy(path dbus.ObjectPath) *DeviceProxy {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &DeviceProxy{Path: path, Adapter: a.adapter, transport: a.client.transport}
}

// dbusError maps agent errors to the daemon's error names.
func dbusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSenderMismatch):
		return dbus.NewError(ERR_REJECTED, []interface{}{"Permission denied"})
	case errors.Is(err, ErrNotHandled):
		return dbus.NewError(ERR_NOT_SUPPORTED, []interface{}{"Not handled"})
	case errors.Is(err, ErrCanceled):
		return dbus.NewError(ERR_CANCELED, []interface{}{err.Error()})
	default:
		return dbus.NewError(ERR_REJECTED, []interface{}{err.Error()})
	}
}

// agentObject is what gets exported: only the org.bluez.Agent methods.
type agentObject struct {
	agent *Agent
}

func (o *agentObject) Release() *dbus.Error {
	a := o.agent
	a.mu.Lock()
	defer a.mu.Unlock()
	logger.Info("[bluetooth] agent %s released by the daemon", a.path)
	a.released = true
	a.adapter = ""
	a.unexportLocked()
	a.client.loop.post(func() { a.client.renewAgent(a) })
	return nil
}

func (o *agentObject) RequestPinCode(sender dbus.Sender, device dbus.ObjectPath) (string, *dbus.Error) {
	if err := o.agent.verify(sender); err != nil {
		return "", dbusError(err)
	}
	h := o.agent.handlers.PinCode
	if h == nil {
		return "", dbusError(ErrNotHandled)
	}
	pin, err := h(o.agent.proxy(device))
	if err != nil {
		return "", dbusError(err)
	}
	return pin, nil
}

func (o *agentObject) RequestPasskey(sender dbus.Sender, device dbus.ObjectPath) (uint32, *dbus.Error) {
	if err := o.agent.verify(sender); err != nil {
		return 0, dbusError(err)
	}
	h := o.agent.handlers.Passkey
	if h == nil {
		return 0, dbusError(ErrNotHandled)
	}
	passkey, err := h(o.agent.proxy(device))
	if err != nil {
		return 0, dbusError(err)
	}
	return passkey, nil
}

func (o *agentObject) DisplayPasskey(sender dbus.Sender, device dbus.ObjectPath, passkey uint32, entered uint8) *dbus.Error {
	if err := o.agent.verify(sender); err != nil {
		return dbusError(err)
	}
	h := o.agent.handlers.DisplayPasskey
	if h == nil {
		return dbusError(ErrNotHandled)
	}
	return dbusError(h(o.agent.proxy(device), passkey, entered))
}

func (o *agentObject) RequestConfirmation(sender dbus.Sender, device dbus.ObjectPath, passkey uint32) *dbus.Error {
	if err := o.agent.verify(sender); err != nil {
		return dbusError(err)
	}
	h := o.agent.handlers.Confirm
	if h == nil {
		return dbusError(ErrNotHandled)
	}
	ok, err := h(o.agent.proxy(device), passkey)
	if err != nil {
		return dbusError(err)
	}
	if !ok {
		return dbusError(ErrRejected)
	}
	return nil
}

func (o *agentObject) Authorize(sender dbus.Sender, device dbus.ObjectPath, uuid string) *dbus.Error {
	if err := o.agent.verify(sender); err != nil {
		return dbusError(err)
	}
	h := o.agent.handlers.Authorize
	if h == nil {
		return dbusError(ErrNotHandled)
	}
	ok, err := h(o.agent.proxy(device), uuid)
	if err != nil {
		return dbusError(err)
	}
	if !ok {
		return dbusError(ErrRejected)
	}
	return nil
}

func (o *agentObject) Cancel(sender dbus.Sender) *dbus.Error {
	if err := o.agent.verify(sender); err != nil {
		return dbusError(err)
	}
	h := o.agent.handlers.Cancel
	if h == nil {
		return dbusError(ErrNotHandled)
	}
	h()
	return nil
}
