package bluetooth

import "time"

const (
	BLUEZ_SERVICE = "org.bluez"
	BLUEZ_ROOT    = "/"

	MANAGER_IFACE   = BLUEZ_SERVICE + ".Manager"
	ADAPTER_IFACE   = BLUEZ_SERVICE + ".Adapter"
	DEVICE_IFACE    = BLUEZ_SERVICE + ".Device"
	AGENT_IFACE     = BLUEZ_SERVICE + ".Agent"
	HEADSET_IFACE   = BLUEZ_SERVICE + ".Headset"
	AUDIOSINK_IFACE = BLUEZ_SERVICE + ".AudioSink"
	AUDIO_IFACE     = BLUEZ_SERVICE + ".Audio"
	INPUT_IFACE     = BLUEZ_SERVICE + ".Input"

	// Manager methods and signals
	LIST_ADAPTERS           = MANAGER_IFACE + ".ListAdapters"
	DEFAULT_ADAPTER         = MANAGER_IFACE + ".DefaultAdapter"
	ADAPTER_ADDED           = MANAGER_IFACE + ".AdapterAdded"
	ADAPTER_REMOVED         = MANAGER_IFACE + ".AdapterRemoved"
	DEFAULT_ADAPTER_CHANGED = MANAGER_IFACE + ".DefaultAdapterChanged"

	// Adapter methods and signals
	ADAPTER_GET_PROPERTIES = ADAPTER_IFACE + ".GetProperties"
	ADAPTER_SET_PROPERTY   = ADAPTER_IFACE + ".SetProperty"
	START_DISCOVERY        = ADAPTER_IFACE + ".StartDiscovery"
	STOP_DISCOVERY         = ADAPTER_IFACE + ".StopDiscovery"
	CREATE_DEVICE          = ADAPTER_IFACE + ".CreateDevice"
	CREATE_PAIRED_DEVICE   = ADAPTER_IFACE + ".CreatePairedDevice"
	REMOVE_DEVICE          = ADAPTER_IFACE + ".RemoveDevice"
	REGISTER_AGENT         = ADAPTER_IFACE + ".RegisterAgent"
	UNREGISTER_AGENT       = ADAPTER_IFACE + ".UnregisterAgent"
	ADAPTER_PROP_CHANGED   = ADAPTER_IFACE + ".PropertyChanged"
	DEVICE_CREATED         = ADAPTER_IFACE + ".DeviceCreated"
	DEVICE_REMOVED         = ADAPTER_IFACE + ".DeviceRemoved"
	DEVICE_FOUND           = ADAPTER_IFACE + ".DeviceFound"
	DEVICE_DISAPPEARED     = ADAPTER_IFACE + ".DeviceDisappeared"

	// Device methods and signals
	DEVICE_GET_PROPERTIES = DEVICE_IFACE + ".GetProperties"
	DEVICE_SET_PROPERTY   = DEVICE_IFACE + ".SetProperty"
	DEVICE_DISCONNECT     = DEVICE_IFACE + ".Disconnect"
	DEVICE_PROP_CHANGED   = DEVICE_IFACE + ".PropertyChanged"

	// Member names shared by the service interfaces (Headset, AudioSink, Audio, Input)
	GET_PROPERTIES   = "GetProperties"
	SET_PROPERTY     = "SetProperty"
	CONNECT          = "Connect"
	DISCONNECT       = "Disconnect"
	PROPERTY_CHANGED = "PropertyChanged"

	AGENT_CAPABILITY = "DisplayYesNo"

	CREATE_DEVICE_TIMEOUT        = 60 * time.Second
	CREATE_PAIRED_DEVICE_TIMEOUT = 90 * time.Second
	SERVICE_TIMEOUT              = 25 * time.Second
)

// Adapter properties
const (
	PROP_ADDRESS              = "Address"
	PROP_NAME                 = "Name"
	PROP_POWERED              = "Powered"
	PROP_DISCOVERABLE         = "Discoverable"
	PROP_DISCOVERABLE_TIMEOUT = "DiscoverableTimeout"
	PROP_DISCOVERING          = "Discovering"
	PROP_DEVICES              = "Devices"
)

// Device properties
const (
	PROP_ALIAS          = "Alias"
	PROP_ICON           = "Icon"
	PROP_CLASS          = "Class"
	PROP_PAIRED         = "Paired"
	PROP_TRUSTED        = "Trusted"
	PROP_CONNECTED      = "Connected"
	PROP_UUIDS          = "UUIDs"
	PROP_LEGACY_PAIRING = "LegacyPairing"
	PROP_STATE          = "State"
)

// Agent error names
const (
	ERR_REJECTED      = BLUEZ_SERVICE + ".Error.Rejected"
	ERR_CANCELED      = BLUEZ_SERVICE + ".Error.Canceled"
	ERR_NOT_SUPPORTED = BLUEZ_SERVICE + ".Error.NotSupported"
)
