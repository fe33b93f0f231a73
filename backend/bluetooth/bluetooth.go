package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/cache"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// Client owns the bus connection, the registry mirrored from the daemon and
// the loop every mutation runs on. It is shared by reference counting:
// New returns a client holding one reference, Acquire adds one and Release
// drops one, closing the client with the last.
type Client struct {
	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc

	loop     *loop
	registry *Registry
	catalog  *Catalog

	// probes caches the interfaces found per device, not their statuses.
	probes *cache.Cache[dbus.ObjectPath, []string]

	signals chan *dbus.Signal
	eventsC chan events.Event

	agentCfg *config.AgentConfig
	agent    *Agent

	// owner is the unique bus name of the daemon. Loop only.
	owner string

	mu      sync.Mutex
	refs    int
	started bool
	closed  bool
	done    chan struct{}
}

// New connects to the system bus. It returns nil, nil when the backend is
// disabled.
func New(ctx context.Context, cfg *config.BluetoothConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	bus, err := idbus.ConnectSystemBus(cfg.Timeout)
	if err != nil {
		return nil, err
	}

	c, err := NewWithTransport(ctx, bus, cfg)
	if err != nil {
		if closeErr := bus.Close(); closeErr != nil {
			logger.Warn("[bluetooth] failed to close D-Bus connection: %v", closeErr)
		}
		return nil, err
	}
	logger.Info("[bluetooth] backend initialized")
	return c, nil
}

// NewWithTransport builds a client over an already connected transport.
// The client owns t from then on and closes it with the last reference.
func NewWithTransport(ctx context.Context, t Transport, cfg *config.BluetoothConfig) (*Client, error) {
	catalog, err := LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	c := newClient(ctx, t, catalog, cfg.ProbeCacheTTL)
	c.agentCfg = cfg.Agent
	return c, nil
}

func newClient(ctx context.Context, t Transport, catalog *Catalog, probeTTL time.Duration) *Client {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		transport: t,
		ctx:       ctx,
		cancel:    cancel,
		loop:      newLoop(),
		registry:  newRegistry(),
		catalog:   catalog,
		probes:    cache.New[dbus.ObjectPath, []string](probeTTL),
		signals:   make(chan *dbus.Signal, 64),
		eventsC:   make(chan events.Event, 64),
		refs:      1,
		done:      make(chan struct{}),
	}
	c.registry.Subscribe(c.publish)
	return c
}

// Start subscribes to the daemon's signals, queues the bootstrap and runs the
// loop. When an agent is configured it is exported and registered once the
// registry knows the default adapter.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}

	c.transport.Signal(c.signals)
	for _, rule := range matchRules {
		if err := c.transport.AddMatch(rule); err != nil {
			c.transport.RemoveSignal(c.signals)
			return fmt.Errorf("add match rule: %w", err)
		}
	}

	if c.agentCfg != nil && c.agentCfg.Enabled {
		c.agent = NewAgent(c, PolicyHandlers(c.agentCfg, c.emit))
	}

	c.loop.post(c.bootstrap)
	c.started = true
	go func() {
		defer close(c.done)
		c.loop.run(c.ctx, c.signals, c.handleSignal)
	}()

	logger.Info("[bluetooth] client started")
	return nil
}

// Registry returns the live read model.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Catalog returns the service interface catalog in use.
func (c *Client) Catalog() *Catalog {
	return c.catalog
}

// Agent returns the configured pairing agent, or nil. The agent is replaced
// when the daemon releases it, so callers should not keep the result.
func (c *Client) Agent() *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agent
}

// renewAgent replaces an agent the daemon released with a fresh one on the
// same path and registers it with the default adapter. Runs on the loop.
func (c *Client) renewAgent(old *Agent) {
	c.mu.Lock()
	if c.closed || c.agent != old {
		c.mu.Unlock()
		return
	}
	a := NewAgent(c, old.handlers)
	a.path = old.Path()
	c.agent = a
	c.mu.Unlock()

	logger.Info("[bluetooth] agent %s recreated after release", a.path)
	if err := a.attach(); err != nil {
		logger.Warn("[bluetooth] failed to register agent: %v", err)
	}
}

func (c *Client) Events() <-chan events.Event {
	return c.eventsC
}

// Acquire adds a reference to the shared client.
func (c *Client) Acquire() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return c
}

// Release drops a reference; the last one closes the client.
func (c *Client) Release() {
	c.mu.Lock()
	c.refs--
	last := c.refs == 0
	c.mu.Unlock()
	if last {
		c.Close()
	}
}

// Close stops the loop, unregisters the agent and closes the bus connection
// regardless of outstanding references.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	agent := c.agent
	c.mu.Unlock()

	if agent != nil {
		if err := agent.Unregister(); err != nil {
			logger.Warn("[bluetooth] failed to unregister agent: %v", err)
		}
	}

	c.cancel()
	if started {
		<-c.done
		for _, rule := range matchRules {
			if err := c.transport.RemoveMatch(rule); err != nil {
				logger.Debug("[bluetooth] failed to remove match rule: %v", err)
			}
		}
		c.transport.RemoveSignal(c.signals)
	}

	if err := c.transport.Close(); err != nil {
		logger.Error("[bluetooth] failed to close D-Bus connection: %v", err)
	}
	logger.Debug("[bluetooth] client closed")
}

// emit forwards an event to the backend without blocking the loop.
func (c *Client) emit(e events.Event) {
	select {
	case c.eventsC <- e:
	default:
		logger.Warn("[bluetooth] event channel full, dropping %s event", e.Type)
	}
}

// publish mirrors registry changes onto the event channel.
func (c *Client) publish(ch Change) {
	switch ch.Kind {
	case AdapterAdded:
		c.emit(events.Event{Type: events.TypeAdapterAdded, Data: *ch.Adapter})
	case AdapterChanged:
		c.emit(events.Event{Type: events.TypeAdapterUpdated, Data: *ch.Adapter})
	case AdapterRemoved:
		c.emit(events.Event{Type: events.TypeAdapterRemoved, Data: *ch.Adapter})
	case DefaultAdapterChanged:
		var data any
		if ch.Adapter != nil {
			data = *ch.Adapter
		}
		c.emit(events.Event{Type: events.TypeDefaultAdapter, Data: data})
	case DeviceAdded:
		c.emit(events.Event{Type: events.TypeDeviceAdded, Data: *ch.Device})
	case DeviceChanged:
		c.emit(events.Event{Type: events.TypeDeviceUpdated, Data: *ch.Device})
	case DeviceRemoved:
		c.emit(events.Event{Type: events.TypeDeviceRemoved, Data: *ch.Device})
	case Cleared:
		c.emit(events.Event{Type: events.TypeRegistryCleared})
	}
}

func (c *Client) apply(changes []Change) {
	c.registry.notify(changes...)
}
