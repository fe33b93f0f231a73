package killswitch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

var ErrNotOpen = errors.New("killswitch: device not open")

// Change is published whenever the aggregate state moves.
type Change struct {
	State  State `json:"state"`
	Radios int   `json:"radios"`
}

// Monitor tracks the rfkill state of every Bluetooth radio. The device is
// drained once when opened; afterwards a reader goroutine applies live
// events.
type Monitor struct {
	path   string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	radios map[uint32]State
	file   *os.File

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	eventsC chan events.Event
	wg      sync.WaitGroup
}

// New returns nil, nil when the monitor is disabled.
func New(ctx context.Context, cfg *config.KillswitchConfig) (*Monitor, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	path := cfg.DevicePath
	if path == "" {
		path = config.DefaultRfkillPath
	}
	return newMonitor(ctx, path), nil
}

func newMonitor(ctx context.Context, path string) *Monitor {
	ctx, cancel := context.WithCancel(ctx)
	return &Monitor{
		path:    path,
		ctx:     ctx,
		cancel:  cancel,
		radios:  make(map[uint32]State),
		subs:    make(map[int]func(State)),
		eventsC: make(chan events.Event, 16),
	}
}

// Start opens the device, or waits for it to appear when the rfkill module
// is not loaded yet.
func (m *Monitor) Start() error {
	_, err := os.Stat(m.path)
	switch {
	case err == nil:
		return m.open()
	case errors.Is(err, os.ErrNotExist):
		return m.watch()
	default:
		return fmt.Errorf("killswitch: %w", err)
	}
}

func (m *Monitor) open() error {
	fd, err := unix.Open(m.path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("killswitch: open %s: %w", m.path, err)
	}
	if err := m.attach(fd); err != nil {
		_ = unix.Close(fd)
		return err
	}
	logger.Info("[killswitch] monitoring %s: %s", m.path, m.State())
	return nil
}

// attach drains the backlog of a non-blocking descriptor, then hands it to
// the reader goroutine. It fails without taking ownership of fd once the
// monitor is closed.
func (m *Monitor) attach(fd int) error {
	if err := m.ctx.Err(); err != nil {
		return fmt.Errorf("killswitch: monitor closed: %w", err)
	}
	if err := m.drain(fd); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Close cancels before taking the lock, so a file stored here is
	// always seen and closed by it.
	if err := m.ctx.Err(); err != nil {
		return fmt.Errorf("killswitch: monitor closed: %w", err)
	}
	f := os.NewFile(uintptr(fd), m.path)
	if f == nil {
		return fmt.Errorf("killswitch: invalid descriptor for %s", m.path)
	}
	m.file = f
	m.wg.Add(1)
	go m.readLoop(f)
	return nil
}

// drain reads the initial event backlog until the device has nothing more.
func (m *Monitor) drain(fd int) error {
	buf := make([]byte, EventSize)
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("killswitch: read %s: %w", m.path, err)
		case n == 0:
			return nil
		}
		m.handle(buf[:n])
	}
}

func (m *Monitor) readLoop(f *os.File) {
	defer m.wg.Done()
	buf := make([]byte, EventSize)
	for {
		n, err := f.Read(buf)
		if err != nil {
			if m.ctx.Err() == nil && !errors.Is(err, os.ErrClosed) {
				logger.Error("[killswitch] read failed: %v", err)
			}
			return
		}
		m.handle(buf[:n])
	}
}

// watch waits for the device node to be created.
func (m *Monitor) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Info("[killswitch] Failed to close watcher: %v", closeErr)
		}
		return err
	}

	logger.Info("[killswitch] %s not present, watching %s", m.path, dir)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warn("[killswitch] Failed to close watcher: %v", err)
			}
		}()
		for {
			select {
			case <-m.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != m.path || !event.Has(fsnotify.Create) {
					continue
				}
				if err := m.open(); err != nil {
					if m.ctx.Err() != nil {
						return
					}
					logger.Error("[killswitch] %v", err)
					continue
				}
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("[killswitch] fsnotify watcher error: %v", err)
			}
		}
	}()
	return nil
}

// handle applies one raw record. Malformed records and other radio types
// are skipped.
func (m *Monitor) handle(raw []byte) {
	ev, err := ParseEvent(raw)
	if err != nil {
		logger.Warn("[killswitch] %v", err)
		return
	}
	if ev.Type != TypeBluetooth {
		return
	}

	m.mu.Lock()
	before := m.aggregateLocked()
	switch ev.Op {
	case OpAdd, OpChange:
		m.radios[ev.Index] = stateOf(ev.Soft, ev.Hard)
	case OpDel:
		delete(m.radios, ev.Index)
	default:
		m.mu.Unlock()
		logger.Debug("[killswitch] ignoring %s event for radio %d", ev.Op, ev.Index)
		return
	}
	after := m.aggregateLocked()
	radios := len(m.radios)
	m.mu.Unlock()

	logger.Debug("[killswitch] radio %d %s: soft=%v hard=%v", ev.Index, ev.Op, ev.Soft, ev.Hard)
	if after != before {
		m.notify(after, radios)
	}
}

func (m *Monitor) aggregateLocked() State {
	return Aggregate(slices.Collect(maps.Values(m.radios)))
}

func (m *Monitor) notify(s State, radios int) {
	logger.Info("[killswitch] state changed: %s", s)

	select {
	case m.eventsC <- events.Event{Type: events.TypeKillswitchChanged, Data: Change{State: s, Radios: radios}}:
	default:
		logger.Warn("[killswitch] event channel full, dropping state change")
	}

	m.subMu.Lock()
	ids := slices.Sorted(maps.Keys(m.subs))
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// State returns the aggregate of every known Bluetooth radio, recomputed
// from the per-radio states.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aggregateLocked()
}

// HasKillswitches reports whether any Bluetooth radio is known.
func (m *Monitor) HasKillswitches() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.radios) > 0
}

// Radios returns the per-radio states by kernel index.
func (m *Monitor) Radios() map[uint32]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.radios)
}

// SetState asks the kernel to soft block or unblock every Bluetooth radio.
// The new state shows up later through the change notification.
func (m *Monitor) SetState(target State) error {
	if target != SoftBlocked && target != Unblocked {
		return ErrInvalidState
	}

	m.mu.RLock()
	f := m.file
	m.mu.RUnlock()
	if f == nil {
		return ErrNotOpen
	}

	b, _ := Event{Type: TypeBluetooth, Op: OpChangeAll, Soft: target == SoftBlocked}.MarshalBinary()
	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("killswitch: write %s: %w", m.path, err)
	}
	logger.Info("[killswitch] requested %s", target)
	return nil
}

// Subscribe registers fn for aggregate state changes. fn runs on the reader
// goroutine. The returned func unsubscribes.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Monitor) Events() <-chan events.Event {
	return m.eventsC
}

// Close stops the reader and closes the device.
func (m *Monitor) Close() {
	m.cancel()

	m.mu.Lock()
	f := m.file
	m.file = nil
	m.mu.Unlock()
	if f != nil {
		if err := f.Close(); err != nil {
			logger.Warn("[killswitch] failed to close %s: %v", m.path, err)
		}
	}
	m.wg.Wait()
	logger.Debug("[killswitch] monitor closed")
}
