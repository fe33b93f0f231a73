package bluetooth

import "strings"

// DeviceType is a bitmask classification derived from the class of device.
type DeviceType uint32

const (
	TypeAny        DeviceType = 1 << iota
	TypePhone                 // 1 << 1
	TypeModem                 // 1 << 2
	TypeComputer              // 1 << 3
	TypeNetwork               // 1 << 4
	TypeHeadset               // 1 << 5
	TypeHeadphones            // 1 << 6
	TypeOtherAudio            // 1 << 7
	TypeKeyboard              // 1 << 8
	TypeMouse                 // 1 << 9
	TypeCamera                // 1 << 10
	TypePrinter               // 1 << 11
	TypeJoypad                // 1 << 12
	TypeTablet                // 1 << 13

	typeLast = TypeTablet
)

// TypeInput matches keyboards, mice, joypads and tablets.
const TypeInput = TypeKeyboard | TypeMouse | TypeJoypad | TypeTablet

// TypeAudio matches headsets, headphones and other audio devices.
const TypeAudio = TypeHeadset | TypeHeadphones | TypeOtherAudio

var typeNames = map[DeviceType]string{
	TypeAny:        "All types",
	TypePhone:      "Phone",
	TypeModem:      "Modem",
	TypeComputer:   "Computer",
	TypeNetwork:    "Network",
	TypeHeadset:    "Headset",
	TypeHeadphones: "Headphones",
	TypeOtherAudio: "Audio device",
	TypeKeyboard:   "Keyboard",
	TypeMouse:      "Mouse",
	TypeCamera:     "Camera",
	TypePrinter:    "Printer",
	TypeJoypad:     "Joypad",
	TypeTablet:     "Tablet",
}

// String returns the human readable name of a single type flag.
// Combined or unknown masks yield "Unknown".
func (t DeviceType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText uses the query keyword so JSON output round-trips through ParseDeviceTypes.
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(typeKeyword(t)), nil
}

// Matches reports whether t is selected by mask. A zero mask or one
// containing TypeAny selects every type.
func (t DeviceType) Matches(mask DeviceType) bool {
	if mask == 0 || mask&TypeAny != 0 {
		return true
	}
	return t&mask != 0
}

// ParseDeviceTypes parses a comma separated list of type names
// ("phone,headset") into a mask. Unknown names are reported by ok=false.
func ParseDeviceTypes(s string) (DeviceType, bool) {
	var mask DeviceType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for t := TypeAny; t <= typeLast; t <<= 1 {
			if strings.EqualFold(part, t.String()) || strings.EqualFold(part, typeKeyword(t)) {
				mask |= t
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return mask, true
}

// typeKeyword is the single word form accepted in queries.
func typeKeyword(t DeviceType) string {
	switch t {
	case TypeAny:
		return "any"
	case TypeOtherAudio:
		return "audio"
	default:
		return strings.ToLower(t.String())
	}
}

// classToType decodes the major and minor device class fields.
func classToType(class uint32) DeviceType {
	minor := (class & 0xfc) >> 2

	switch (class & 0x1f00) >> 8 {
	case 0x01:
		return TypeComputer
	case 0x02:
		switch minor {
		case 0x01, 0x02, 0x03, 0x05:
			return TypePhone
		case 0x04:
			return TypeModem
		}
	case 0x03:
		return TypeNetwork
	case 0x04:
		switch minor {
		case 0x01, 0x02:
			return TypeHeadset
		case 0x06:
			return TypeHeadphones
		default:
			return TypeOtherAudio
		}
	case 0x05:
		sub := (class & 0x1e) >> 2
		switch (class & 0xc0) >> 6 {
		case 0x00:
			if sub == 0x01 || sub == 0x02 {
				return TypeJoypad
			}
		case 0x01:
			return TypeKeyboard
		case 0x02:
			if sub == 0x05 {
				return TypeTablet
			}
			return TypeMouse
		}
	case 0x06:
		if class&0x80 != 0 {
			return TypePrinter
		}
		if class&0x20 != 0 {
			return TypeCamera
		}
	}

	return TypeAny
}
