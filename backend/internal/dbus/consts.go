package dbus

// Standard D-Bus names
const (
	DBUS_SERVICE   = "org.freedesktop.DBus"
	DBUS_PATH      = "/org/freedesktop/DBus"
	DBUS_INTERFACE = "org.freedesktop.DBus"

	INTROSPECTABLE      = DBUS_INTERFACE + ".Introspectable"
	BUS_ADD_MATCH       = DBUS_INTERFACE + ".AddMatch"
	BUS_REMOVE_MATCH    = DBUS_INTERFACE + ".RemoveMatch"
	BUS_GET_NAME_OWNER  = DBUS_INTERFACE + ".GetNameOwner"
	NAME_OWNER_CHANGED  = DBUS_INTERFACE + ".NameOwnerChanged"
	DBUS_PROP_IFACE     = DBUS_INTERFACE + ".Properties"
	PROP_GET            = DBUS_PROP_IFACE + ".Get"
	PROP_SET            = DBUS_PROP_IFACE + ".Set"
	PROP_GET_ALL        = DBUS_PROP_IFACE + ".GetAll"
	DBUS_OBJECT_MNGR    = DBUS_INTERFACE + ".ObjectManager"
	MANAGED_OBJECTS     = DBUS_OBJECT_MNGR + ".GetManagedObjects"
	ERR_UNKNOWN_METHOD  = DBUS_INTERFACE + ".Error.UnknownMethod"
	ERR_UNKNOWN_OBJECT  = DBUS_INTERFACE + ".Error.UnknownObject"
	ERR_UNKNOWN_IFACE   = DBUS_INTERFACE + ".Error.UnknownInterface"
	ERR_SERVICE_UNKNOWN = DBUS_INTERFACE + ".Error.ServiceUnknown"
	ERR_NAME_HAS_NO_OWN = DBUS_INTERFACE + ".Error.NameHasNoOwner"
)
