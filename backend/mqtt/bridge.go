// Package mqtt mirrors registry and kill-switch events onto an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// client is the part of pahomqtt.Client the bridge uses.
type client interface {
	Connect() pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// stateTypes are always retained: a new subscriber needs the current value,
// not just the next transition.
var stateTypes = []string{events.TypeKillswitchChanged, events.TypeDefaultAdapter}

// Bridge publishes events under <prefix>/<type with dots as slashes>.
// Pairing agent traffic stays off the broker.
type Bridge struct {
	cfg    *config.MQTTConfig
	client client
	filter events.Filter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns nil, nil when the bridge is disabled.
func New(ctx context.Context, cfg *config.MQTTConfig) (*Bridge, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	return newBridge(ctx, cfg, pahomqtt.NewClient(buildClientOptions(cfg))), nil
}

func newBridge(ctx context.Context, cfg *config.MQTTConfig, c client) *Bridge {
	ctx, cancel := context.WithCancel(ctx)
	return &Bridge{
		cfg:    cfg,
		client: c,
		filter: events.NewFilter(nil, events.BackendTypes["agent"]),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects to the broker, announces the online status and forwards
// src until it closes or the bridge is closed.
func (b *Bridge) Start(src <-chan events.Event) error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := b.publish(statusTopic(b.cfg.TopicPrefix), []byte(statusPayload("online", b.cfg.ClientID)), true); err != nil {
		logger.Warn("[mqtt] failed to publish online status: %v", err)
	}
	logger.Info("[mqtt] connected to %s", b.cfg.Broker)

	b.wg.Add(1)
	go b.forward(src)
	return nil
}

func (b *Bridge) forward(src <-chan events.Event) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case e, ok := <-src:
			if !ok {
				return
			}
			if err := b.Publish(e); err != nil {
				logger.Warn("[mqtt] %s: %v", e.Type, err)
			}
		}
	}
}

// Topic returns the topic an event type is published on.
func (b *Bridge) Topic(eventType string) string {
	return b.cfg.TopicPrefix + "/" + strings.ReplaceAll(eventType, ".", "/")
}

// Publish sends one event as JSON. Filtered events are skipped silently.
func (b *Bridge) Publish(e events.Event) error {
	if b.filter != nil && !b.filter(e) {
		return nil
	}
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	retained := b.cfg.Retain || slices.Contains(stateTypes, e.Type)
	return b.publish(b.Topic(e.Type), payload, retained)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) error {
	if topic == "" || strings.HasPrefix(topic, "/") {
		return ErrInvalidTopic
	}
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	token := b.client.Publish(topic, b.cfg.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	logger.Debug("[mqtt] published %s", topic)
	return nil
}

// Close publishes the offline status and disconnects.
func (b *Bridge) Close() {
	b.cancel()
	b.wg.Wait()
	if !b.client.IsConnected() {
		return
	}
	if err := b.publish(statusTopic(b.cfg.TopicPrefix), []byte(statusPayload("offline", b.cfg.ClientID)), true); err != nil {
		logger.Debug("[mqtt] failed to publish offline status: %v", err)
	}
	b.client.Disconnect(disconnectQuiesce)
	logger.Debug("[mqtt] disconnected")
}
