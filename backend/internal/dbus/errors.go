package dbus

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// TimeoutError is returned when a D-Bus call exceeds its deadline.
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string {
	if e.Method == "" {
		return "dbus: call timed out"
	}
	return fmt.Sprintf("dbus: %s timed out", e.Method)
}

// Timeout lets callers outside this package detect expiry without the type.
func (e *TimeoutError) Timeout() bool { return true }

// SignalError is returned when a D-Bus signal body is malformed.
type SignalError struct {
	Reason string
}

func (e *SignalError) Error() string { return fmt.Sprintf("dbus: signal error: %s", e.Reason) }

// ErrorName returns the D-Bus error name carried by err, or "".
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Name
	}
	var ve dbus.Error
	if errors.As(err, &ve) {
		return ve.Name
	}
	return ""
}

// goneErrors are the replies meaning the remote object or method no longer exists.
var goneErrors = map[string]bool{
	ERR_UNKNOWN_METHOD:             true,
	ERR_UNKNOWN_OBJECT:             true,
	ERR_UNKNOWN_IFACE:              true,
	"org.bluez.Error.DoesNotExist": true,
}

// IsObjectGone reports whether err means the target object has already disappeared.
func IsObjectGone(err error) bool {
	return goneErrors[ErrorName(err)]
}

// IsUnknownMethod reports whether err is an UnknownMethod reply.
func IsUnknownMethod(err error) bool {
	return ErrorName(err) == ERR_UNKNOWN_METHOD
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
