package bluetooth

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// AgentRequest describes one pairing request for event consumers.
type AgentRequest struct {
	Method   string          `json:"method"`
	Device   dbus.ObjectPath `json:"device"`
	Address  string          `json:"address,omitempty"`
	Passkey  string          `json:"passkey,omitempty"`
	Entered  uint8           `json:"entered,omitempty"`
	UUID     string          `json:"uuid,omitempty"`
	Accepted bool            `json:"accepted"`
}

// PolicyHandlers answers pairing requests from configuration, for headless
// setups without a user to ask. Every request is published as an event.
func PolicyHandlers(cfg *config.AgentConfig, emit func(events.Event)) AgentHandlers {
	publish := func(req AgentRequest) {
		if emit != nil {
			emit(events.Event{Type: events.TypeAgentRequest, Data: req})
		}
	}

	h := AgentHandlers{
		DisplayPasskey: func(dev *DeviceProxy, passkey uint32, entered uint8) error {
			publish(AgentRequest{
				Method:   "DisplayPasskey",
				Device:   dev.Path,
				Address:  dev.Address(),
				Passkey:  formatPasskey(passkey),
				Entered:  entered,
				Accepted: true,
			})
			return nil
		},
		Confirm: func(dev *DeviceProxy, passkey uint32) (bool, error) {
			logger.Info("[bluetooth] confirmation %s for %s: accepted=%v", formatPasskey(passkey), dev.Path, cfg.AutoAccept)
			publish(AgentRequest{
				Method:   "RequestConfirmation",
				Device:   dev.Path,
				Address:  dev.Address(),
				Passkey:  formatPasskey(passkey),
				Accepted: cfg.AutoAccept,
			})
			return cfg.AutoAccept, nil
		},
		Authorize: func(dev *DeviceProxy, uuid string) (bool, error) {
			name := ShortUUID(uuid)
			if name == "" {
				name = uuid
			}
			logger.Info("[bluetooth] authorize %s for %s: accepted=%v", name, dev.Path, cfg.AutoAccept)
			publish(AgentRequest{
				Method:   "Authorize",
				Device:   dev.Path,
				Address:  dev.Address(),
				UUID:     name,
				Accepted: cfg.AutoAccept,
			})
			return cfg.AutoAccept, nil
		},
		Cancel: func() {
			logger.Info("[bluetooth] pairing request canceled")
			if emit != nil {
				emit(events.Event{Type: events.TypeAgentCancel})
			}
		},
	}

	if cfg.PinCode != "" {
		h.PinCode = func(dev *DeviceProxy) (string, error) {
			publish(AgentRequest{Method: "RequestPinCode", Device: dev.Path, Address: dev.Address(), Accepted: true})
			return cfg.PinCode, nil
		}
	}
	if cfg.AutoAccept {
		h.Passkey = func(dev *DeviceProxy) (uint32, error) {
			publish(AgentRequest{Method: "RequestPasskey", Device: dev.Path, Address: dev.Address(), Accepted: true})
			return cfg.Passkey, nil
		}
	}
	return h
}

func formatPasskey(passkey uint32) string {
	return fmt.Sprintf("%06d", passkey)
}
