package dbus

import (
	"github.com/godbus/dbus/v5"
)

// PropertyChange parses a BlueZ 4 style PropertyChanged(name, value) signal body.
func PropertyChange(sig *dbus.Signal) (string, dbus.Variant, error) {
	if sig == nil {
		return "", dbus.Variant{}, &SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 2 {
		return "", dbus.Variant{}, &SignalError{Reason: "body too short"}
	}
	name, ok := sig.Body[0].(string)
	if !ok {
		return "", dbus.Variant{}, &SignalError{Reason: "failed to parse property name"}
	}
	value, ok := sig.Body[1].(dbus.Variant)
	if !ok {
		return "", dbus.Variant{}, &SignalError{Reason: "body[1] is not a Variant"}
	}
	return name, value, nil
}

// PathArg extracts the object path argument at index i of a signal body.
func PathArg(sig *dbus.Signal, i int) (dbus.ObjectPath, error) {
	if sig == nil || len(sig.Body) <= i {
		return "", &SignalError{Reason: "body too short"}
	}
	p, ok := sig.Body[i].(dbus.ObjectPath)
	if !ok {
		return "", &SignalError{Reason: "argument is not an object path"}
	}
	return p, nil
}

// StringArg extracts the string argument at index i of a signal body.
func StringArg(sig *dbus.Signal, i int) (string, error) {
	if sig == nil || len(sig.Body) <= i {
		return "", &SignalError{Reason: "body too short"}
	}
	s, ok := sig.Body[i].(string)
	if !ok {
		return "", &SignalError{Reason: "argument is not a string"}
	}
	return s, nil
}

// --- Variant extraction helpers ---

// ExtractString extracts a string from a dbus.Variant.
func ExtractString(v dbus.Variant) (string, bool) {
	val, ok := v.Value().(string)
	return val, ok
}

// ExtractBool extracts a bool from a dbus.Variant.
func ExtractBool(v dbus.Variant) (bool, bool) {
	val, ok := v.Value().(bool)
	return val, ok
}

// ExtractUint32 extracts a uint32 from a dbus.Variant.
func ExtractUint32(v dbus.Variant) (uint32, bool) {
	val, ok := v.Value().(uint32)
	return val, ok
}

// ExtractStrings extracts a []string from a dbus.Variant.
func ExtractStrings(v dbus.Variant) ([]string, bool) {
	val, ok := v.Value().([]string)
	return val, ok
}

// ExtractPaths extracts a []dbus.ObjectPath from a dbus.Variant.
func ExtractPaths(v dbus.Variant) ([]dbus.ObjectPath, bool) {
	val, ok := v.Value().([]dbus.ObjectPath)
	return val, ok
}

// --- Map helpers (props map[string]dbus.Variant) ---

// MapString extracts a string from a props map by key.
func MapString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		s, _ := ExtractString(v)
		return s
	}
	return ""
}

// MapBool extracts a bool from a props map by key.
func MapBool(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		b, _ := ExtractBool(v)
		return b
	}
	return false
}

// MapBoolOK extracts a bool from a props map by key, with existence check.
func MapBoolOK(props map[string]dbus.Variant, key string) (bool, bool) {
	if v, ok := props[key]; ok {
		return ExtractBool(v)
	}
	return false, false
}

// MapUint32 extracts a uint32 from a props map by key, with existence check.
func MapUint32(props map[string]dbus.Variant, key string) (uint32, bool) {
	if v, ok := props[key]; ok {
		return ExtractUint32(v)
	}
	return 0, false
}

// MapStrings extracts a []string from a props map by key.
func MapStrings(props map[string]dbus.Variant, key string) []string {
	if v, ok := props[key]; ok {
		s, _ := ExtractStrings(v)
		return s
	}
	return nil
}

// MapPaths extracts a []dbus.ObjectPath from a props map by key.
func MapPaths(props map[string]dbus.Variant, key string) []dbus.ObjectPath {
	if v, ok := props[key]; ok {
		p, _ := ExtractPaths(v)
		return p
	}
	return nil
}

// Keys returns the keys of a props map (useful for debug logging).
func Keys(props map[string]dbus.Variant) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	return keys
}
