package dbus

import (
	"context"
	"errors"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// DefaultTimeout is the timeout used for synchronous D-Bus calls.
var DefaultTimeout = 5 * time.Second

// Bus is a thin wrapper around a system bus connection offering bounded
// synchronous calls, asynchronous calls with a completion callback, match
// rules, signal delivery and object export.
type Bus struct {
	conn    *dbus.Conn
	timeout time.Duration
}

// ConnectSystemBus opens a private system bus connection.
func ConnectSystemBus(timeout time.Duration) (*Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return NewBus(conn, timeout), nil
}

// NewBus wraps an existing connection.
func NewBus(conn *dbus.Conn, timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bus{conn: conn, timeout: timeout}
}

// Call invokes method synchronously and returns the reply body.
func (b *Bus) Call(dest string, path dbus.ObjectPath, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	call := b.conn.Object(dest, path).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Method: method}
		}
		return nil, call.Err
	}
	return call.Body, nil
}

// CallAsync invokes method without blocking. done is called exactly once from
// a transport goroutine with the reply body or the error. timeout <= 0 uses
// the bus default.
func (b *Bus) CallAsync(dest string, path dbus.ObjectPath, method string, timeout time.Duration, done func([]interface{}, error), args ...interface{}) {
	if timeout <= 0 {
		timeout = b.timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ch := make(chan *dbus.Call, 1)
	b.conn.Object(dest, path).GoWithContext(ctx, method, 0, ch, args...)

	go func() {
		defer cancel()
		select {
		case call := <-ch:
			if call.Err != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					done(nil, &TimeoutError{Method: method})
					return
				}
				done(nil, call.Err)
				return
			}
			done(call.Body, nil)
		case <-ctx.Done():
			done(nil, &TimeoutError{Method: method})
		}
	}()
}

// NameOwner returns the unique connection name currently owning name.
func (b *Bus) NameOwner(name string) (string, error) {
	body, err := b.Call(DBUS_SERVICE, DBUS_PATH, BUS_GET_NAME_OWNER, name)
	if err != nil {
		return "", err
	}
	var owner string
	if err := dbus.Store(body, &owner); err != nil {
		return "", err
	}
	return owner, nil
}

// AddMatch subscribes to a D-Bus signal via a match rule.
func (b *Bus) AddMatch(rule string) error {
	return b.conn.BusObject().Call(BUS_ADD_MATCH, 0, rule).Err
}

// RemoveMatch unsubscribes from a D-Bus signal match rule.
func (b *Bus) RemoveMatch(rule string) error {
	return b.conn.BusObject().Call(BUS_REMOVE_MATCH, 0, rule).Err
}

func (b *Bus) Signal(ch chan<- *dbus.Signal) {
	b.conn.Signal(ch)
}

func (b *Bus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.conn.RemoveSignal(ch)
}

// Export publishes v at path under iface, along with introspection data so
// remote peers can discover its methods.
func (b *Bus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	if err := b.conn.Export(v, path, iface); err != nil {
		return err
	}
	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    iface,
				Methods: introspect.Methods(v),
			},
		},
	}
	return b.conn.Export(introspect.NewIntrospectable(node), path, INTROSPECTABLE)
}

// Unexport removes what Export published at path.
func (b *Bus) Unexport(path dbus.ObjectPath, iface string) error {
	if err := b.conn.Export(nil, path, iface); err != nil {
		return err
	}
	return b.conn.Export(nil, path, INTROSPECTABLE)
}

func (b *Bus) Close() error {
	return b.conn.Close()
}
