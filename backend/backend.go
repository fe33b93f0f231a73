package backend

import (
	"context"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/backend/killswitch"
	"github.com/b0bbywan/odio-bluetooth/backend/mqtt"
	"github.com/b0bbywan/odio-bluetooth/backend/zeroconf"
	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// Backend holds every enabled backend. Disabled ones are nil.
type Backend struct {
	Bluetooth  *bluetooth.Client
	Killswitch *killswitch.Monitor
	Zeroconf   *zeroconf.ZeroConfBackend
	MQTT       *mqtt.Bridge

	broadcaster *Broadcaster
	mqttEvents  chan events.Event
}

func New(ctx context.Context, cfg *config.Config) (*Backend, error) {
	var backend Backend

	bt, err := bluetooth.New(ctx, cfg.Bluetooth)
	if err != nil {
		return nil, err
	}
	backend.Bluetooth = bt

	ks, err := killswitch.New(ctx, cfg.Killswitch)
	if err != nil {
		backend.Close()
		return nil, err
	}
	backend.Killswitch = ks

	z, err := zeroconf.New(ctx, cfg.Zeroconf)
	if err != nil {
		backend.Close()
		return nil, err
	}
	backend.Zeroconf = z

	m, err := mqtt.New(ctx, cfg.MQTT)
	if err != nil {
		backend.Close()
		return nil, err
	}
	backend.MQTT = m

	backend.broadcaster = newBroadcasterFromBackend(ctx, &backend)
	return &backend, nil
}

// Broadcaster returns the fan-out of every backend's events.
func (b *Backend) Broadcaster() *Broadcaster {
	return b.broadcaster
}

// Start brings the MQTT bridge up first so it sees the bootstrap events.
func (b *Backend) Start() error {
	if b.MQTT != nil && b.broadcaster != nil {
		b.mqttEvents = b.broadcaster.Subscribe()
		if err := b.MQTT.Start(b.mqttEvents); err != nil {
			logger.Warn("[backend] mqtt bridge unavailable: %v", err)
			b.broadcaster.Unsubscribe(b.mqttEvents)
			b.mqttEvents = nil
			b.MQTT.Close()
			b.MQTT = nil
		}
	}

	if b.Bluetooth != nil {
		if err := b.Bluetooth.Start(); err != nil {
			return err
		}
	}

	// rfkill is optional: a host without it still serves the registry.
	if b.Killswitch != nil {
		if err := b.Killswitch.Start(); err != nil {
			logger.Warn("[backend] killswitch unavailable: %v", err)
			b.Killswitch.Close()
			b.Killswitch = nil
		}
	}

	if b.Zeroconf != nil {
		if err := b.Zeroconf.Start(); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backend) Close() {
	if b.Zeroconf != nil {
		b.Zeroconf.Close()
	}
	if b.MQTT != nil {
		b.MQTT.Close()
		if b.mqttEvents != nil {
			b.broadcaster.Unsubscribe(b.mqttEvents)
			b.mqttEvents = nil
		}
	}
	if b.Killswitch != nil {
		b.Killswitch.Close()
	}
	if b.Bluetooth != nil {
		b.Bluetooth.Release()
	}
}
