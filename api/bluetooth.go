package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
)

type createDeviceRequest struct {
	Address string `json:"address"`
	Pair    bool   `json:"pair"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type createDeviceResponse struct {
	Address string          `json:"address"`
	Path    dbus.ObjectPath `json:"path"`
}

func validateCreate(req *createDeviceRequest) error {
	addr, err := normalizeAddress(req.Address)
	if err != nil {
		return err
	}
	req.Address = addr
	return nil
}

func validateEnabled(req *enabledRequest) error {
	if req.Enabled == nil {
		return errors.New("missing enabled field")
	}
	return nil
}

// normalizeAddress accepts a 48-bit address in any separator style and
// returns the daemon's upper-case colon form.
func normalizeAddress(s string) (string, error) {
	hw, err := net.ParseMAC(strings.ReplaceAll(s, "_", ":"))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("invalid bluetooth address %q", s)
	}
	return strings.ToUpper(hw.String()), nil
}

// adapterPath resolves ?adapter= (hci name or full path). Empty means the
// default adapter.
func adapterPath(reg *bluetooth.Registry, r *http.Request) (dbus.ObjectPath, error) {
	raw := r.URL.Query().Get("adapter")
	if raw == "" {
		a, ok := reg.DefaultAdapter()
		if !ok {
			return "", bluetooth.ErrNoDefaultAdapter
		}
		return a.Path, nil
	}
	path := dbus.ObjectPath(raw)
	if !strings.HasPrefix(raw, "/") {
		path = "/org/bluez/" + path
	}
	if _, ok := reg.Adapter(path); !ok {
		return "", bluetooth.ErrAdapterNotFound
	}
	return path, nil
}

func lookupDevice(reg *bluetooth.Registry, r *http.Request) (bluetooth.Device, error) {
	adapter, err := adapterPath(reg, r)
	if err != nil {
		return bluetooth.Device{}, err
	}
	addr, err := normalizeAddress(r.PathValue("address"))
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("%w: %w", bluetooth.ErrDeviceNotFound, err)
	}
	d, ok := reg.DeviceByAddress(adapter, addr)
	if !ok {
		return bluetooth.Device{}, bluetooth.ErrDeviceNotFound
	}
	return d, nil
}

// await runs an async command and waits for its continuation or for the
// request to go away, whichever comes first.
func await(ctx context.Context, start func(done func(error))) error {
	result := make(chan error, 1)
	start(func(err error) { result <- err })
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func listDevices(c *bluetooth.Client) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		reg := c.Registry()
		adapter, err := adapterPath(reg, r)
		if err != nil {
			return nil, err
		}

		q := r.URL.Query()
		filter := bluetooth.Filter{AdapterPath: adapter, ServiceUUID: q.Get("uuid")}
		if raw := q.Get("type"); raw != "" {
			types, ok := bluetooth.ParseDeviceTypes(raw)
			if !ok {
				return nil, badRequest("unknown device type %q", raw)
			}
			filter.Types = types
		}
		category, ok := bluetooth.ParseCategory(q.Get("category"))
		if !ok {
			return nil, badRequest("unknown category %q", q.Get("category"))
		}
		filter.Category = category

		out := []bluetooth.Device{}
		for _, d := range reg.Devices(adapter) {
			if filter.Match(d) {
				out = append(out, d)
			}
		}
		return out, nil
	})
}

func getDevice(c *bluetooth.Client) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return lookupDevice(c.Registry(), r)
	})
}

func createDevice(c *bluetooth.Client) http.HandlerFunc {
	return withBody(validateCreate, func(w http.ResponseWriter, r *http.Request, req *createDeviceRequest) {
		var agent dbus.ObjectPath
		if req.Pair {
			a := c.Agent()
			if a == nil {
				http.Error(w, "pairing requires the agent to be enabled", http.StatusConflict)
				return
			}
			if !a.Registered() {
				http.Error(w, "pairing agent is not registered with an adapter", http.StatusConflict)
				return
			}
			agent = a.Path()
		}

		var path dbus.ObjectPath
		err := await(r.Context(), func(done func(error)) {
			c.CreateDevice(req.Address, agent, func(p dbus.ObjectPath, err error) {
				path = p
				done(err)
			})
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, createDeviceResponse{Address: req.Address, Path: path})
	})
}

// withDevice resolves {address} to a created device before running a command.
func withDevice(c *bluetooth.Client, cmd func(d bluetooth.Device, done func(error))) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := lookupDevice(c.Registry(), r)
		if err == nil && d.Path == "" {
			err = errNotCreated
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeAccepted(w, await(r.Context(), func(done func(error)) { cmd(d, done) }))
	}
}

func withBluetoothAction(cmd func(done func(error))) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeAccepted(w, await(r.Context(), cmd))
	}
}

func withToggle(cmd func(enabled bool, done func(error))) http.HandlerFunc {
	return withBody(validateEnabled, func(w http.ResponseWriter, r *http.Request, req *enabledRequest) {
		writeAccepted(w, await(r.Context(), func(done func(error)) { cmd(*req.Enabled, done) }))
	})
}

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &statusError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}
