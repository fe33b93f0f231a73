package bluetooth

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/b0bbywan/odio-bluetooth/logger"
)

// shortNames maps the leading 32 bits of a service class UUID to its short
// name. 0x1000 (service discovery server) and 0x1200 (PnP information) are
// absent on purpose: they are present on nearly every device.
var shortNames = map[uint32]string{
	0x1101: "SerialPort",
	0x1103: "DialupNetworking",
	0x1104: "IrMCSync",
	0x1105: "OBEXObjectPush",
	0x1106: "OBEXFileTransfer",
	0x1108: "HSP",
	0x110a: "AudioSource",
	0x110b: "AudioSink",
	0x110c: "A/V_RemoteControlTarget",
	0x110e: "A/V_RemoteControl",
	0x1112: "Headset_-_AG",
	0x1115: "PANU",
	0x1116: "NAP",
	0x1117: "GN",
	0x111e: "Handsfree",
	0x111f: "HandsfreeAudioGateway",
	0x1124: "HumanInterfaceDeviceService",
	0x112d: "SIM_Access",
	0x112f: "Phonebook_Access_-_PSE",
	0x1201: "GenericNetworking",
	0x1203: "GenericAudio",
	0x1303: "VideoSource",

	0x8e771301: "SEMC HLA",
	0x8e771303: "SEMC HLA",
	0x8e771401: "SEMC Watch Phone",
}

// ShortUUID returns the short name for a 128-bit service UUID, or "" when the
// UUID is malformed or not in the table.
func ShortUUID(raw string) string {
	u, err := uuid.Parse(raw)
	if err != nil {
		logger.Debug("[bluetooth] ignoring malformed uuid %q: %v", raw, err)
		return ""
	}
	return shortNames[binary.BigEndian.Uint32(u[:4])]
}

// decodeUUIDs converts raw UUIDs to short names, dropping unknown entries
// and duplicates while keeping the daemon's order.
func decodeUUIDs(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	names := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		name := ShortUUID(r)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return names
}
