package api

import (
	"net/http"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/backend/killswitch"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

func (s *Server) registerServerRoutes(b *backend.Backend) {
	s.mux.HandleFunc(
		"/server",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return b.GetServerDeviceInfo()
		}),
	)

	// SSE event stream
	if s.config.SSE && s.broadcaster != nil {
		s.mux.HandleFunc("GET /events", sseHandler(s.broadcaster))
		logger.Info("[api] SSE route registered at /events")
	}
}

func (s *Server) registerBluetoothRoutes(c *bluetooth.Client) {
	s.mux.HandleFunc(
		"GET /bluetooth/adapters",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return c.Registry().Adapters(), nil
		}),
	)
	s.mux.HandleFunc("GET /bluetooth/devices", listDevices(c))
	s.mux.HandleFunc("POST /bluetooth/devices", createDevice(c))
	s.mux.HandleFunc("GET /bluetooth/devices/{address}", getDevice(c))
	s.mux.HandleFunc(
		"DELETE /bluetooth/devices/{address}",
		withDevice(c, func(d bluetooth.Device, done func(error)) {
			c.RemoveDevice(d.Path, done)
		}),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{address}/connect",
		withDevice(c, func(d bluetooth.Device, done func(error)) {
			c.ConnectService(d.Path, done)
		}),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{address}/disconnect",
		withDevice(c, func(d bluetooth.Device, done func(error)) {
			c.DisconnectService(d.Path, done)
		}),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{address}/trust",
		withDevice(c, func(d bluetooth.Device, done func(error)) {
			c.SetTrusted(d.Path, true, done)
		}),
	)
	s.mux.HandleFunc(
		"POST /bluetooth/devices/{address}/untrust",
		withDevice(c, func(d bluetooth.Device, done func(error)) {
			c.SetTrusted(d.Path, false, done)
		}),
	)
	s.mux.HandleFunc("POST /bluetooth/discoverable", withToggle(c.SetDiscoverable))
	s.mux.HandleFunc("POST /bluetooth/discovery/start", withBluetoothAction(c.StartDiscovery))
	s.mux.HandleFunc("POST /bluetooth/discovery/stop", withBluetoothAction(c.StopDiscovery))
	s.mux.HandleFunc(
		"POST /bluetooth/power",
		withToggle(func(enabled bool, done func(error)) {
			c.SetPowered(dbus.ObjectPath(""), enabled, done)
		}),
	)
	logger.Info("[api] bluetooth routes registered at /bluetooth")
}

func (s *Server) registerKillswitchRoutes(m *killswitch.Monitor) {
	s.mux.HandleFunc("GET /killswitch", getKillswitch(m))
	s.mux.HandleFunc("POST /killswitch", setKillswitch(m))
}
