package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/backend/killswitch"
)

var errNotCreated = errors.New("device is known from discovery only, create it first")

func JSONHandler(h func(http.ResponseWriter, *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// withBody decodes the JSON request body into T and validates it before
// calling next.
func withBody[T any](
	validate func(*T) error,
	next func(w http.ResponseWriter, r *http.Request, req *T),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req T
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		if validate != nil {
			if err := validate(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		next(w, r, &req)
	}
}

// writeError maps backend errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), httpStatus(err))
}

// writeAccepted is the reply of commands without a result.
func writeAccepted(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeError(w, err)
}

type timeout interface{ Timeout() bool }

func httpStatus(err error) int {
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	var te timeout
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, bluetooth.ErrDeviceNotFound),
		errors.Is(err, bluetooth.ErrAdapterNotFound):
		return http.StatusNotFound
	case errors.Is(err, bluetooth.ErrNoConnectableService),
		errors.Is(err, errNotCreated):
		return http.StatusConflict
	case errors.Is(err, bluetooth.ErrNoDefaultAdapter),
		errors.Is(err, bluetooth.ErrClosed),
		errors.Is(err, killswitch.ErrNotOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, killswitch.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &te) && te.Timeout():
		return http.StatusGatewayTimeout
	case errors.As(err, &dbusErr) && strings.HasPrefix(dbusErr.Name, "org.bluez.Error."),
		errors.As(err, &dbusErrPtr) && strings.HasPrefix(dbusErrPtr.Name, "org.bluez.Error."):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
