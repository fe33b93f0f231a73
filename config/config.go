package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/b0bbywan/odio-bluetooth/logger"
)

const (
	AppName     = "odio-bluetooth"
	AppVersion  = "0.1.0"
	serviceType = "_odio-bt._tcp"
	domain      = "local."

	DefaultAgentPath   = "/org/odio/bluetooth/agent"
	DefaultRfkillPath  = "/dev/rfkill"
	DefaultCallTimeout = 5 * time.Second
)

type Config struct {
	Api        *ApiConfig
	Bluetooth  *BluetoothConfig
	Killswitch *KillswitchConfig
	Zeroconf   *ZeroConfig
	MQTT       *MQTTConfig
	LogLevel   logger.Level
	LogLevels  map[string]logger.Level
}

type ApiConfig struct {
	Enabled bool
	Bind    string
	Port    int
	SSE     bool
	// CORS is nil when no origin is allowed.
	CORS *CORSConfig
}

type CORSConfig struct {
	Origins []string
}

type BluetoothConfig struct {
	Enabled bool
	// Timeout bounds synchronous registry queries (bootstrap, reconciliation follow-ups).
	Timeout       time.Duration
	CatalogPath   string
	ProbeCacheTTL time.Duration
	Agent         *AgentConfig
}

type AgentConfig struct {
	Enabled    bool
	Path       string
	AutoAccept bool
	PinCode    string
	Passkey    uint32
}

type KillswitchConfig struct {
	Enabled    bool
	DevicePath string
}

type ZeroConfig struct {
	Enabled      bool
	InstanceName string
	ServiceType  string
	Domain       string
	Port         int
	TxtRecords   []string
	Listen       []net.Interface
}

type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// parseLogLevel converts a string to a logger.Level, defaulting to WARN.
func parseLogLevel(levelStr string) logger.Level {
	level, _ := logger.ParseLevel(levelStr)
	return level
}

// parseLogLevels converts the LogLevels map (component -> level name).
// Unknown level names are skipped with a warning.
func parseLogLevels(raw map[string]string) map[string]logger.Level {
	levels := make(map[string]logger.Level, len(raw))
	for component, name := range raw {
		level, ok := logger.ParseLevel(name)
		if !ok {
			logger.Warn("[config] unknown log level %q for component %s", name, component)
			continue
		}
		levels[strings.ToLower(component)] = level
	}
	return levels
}

func interfaceForIP(ip string) (*net.Interface, error) {
	if ip == "127.0.0.1" || ip == "" {
		return nil, nil
	}
	listenIP := net.ParseIP(ip)
	if listenIP == nil {
		return nil, fmt.Errorf("invalid bind: %s", ip)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			var ifaceIP net.IP

			switch v := addr.(type) {
			case *net.IPNet:
				ifaceIP = v.IP
			case *net.IPAddr:
				ifaceIP = v.IP
			}

			if ifaceIP != nil && ifaceIP.Equal(listenIP) {
				return &iface, nil
			}
		}
	}

	return nil, fmt.Errorf("no interface found for IP %s", ip)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.sse", true)
	v.SetDefault("api.cors.origins", []string{})
	v.SetDefault("bind", "127.0.0.1")

	v.SetDefault("bluetooth.enabled", true)
	v.SetDefault("bluetooth.timeout", DefaultCallTimeout.String())
	v.SetDefault("bluetooth.catalog", "")
	v.SetDefault("bluetooth.probe_cache_ttl", "30s")
	v.SetDefault("bluetooth.agent.enabled", true)
	v.SetDefault("bluetooth.agent.path", DefaultAgentPath)
	v.SetDefault("bluetooth.agent.auto_accept", false)
	v.SetDefault("bluetooth.agent.pin", "0000")
	v.SetDefault("bluetooth.agent.passkey", 0)

	v.SetDefault("killswitch.enabled", true)
	v.SetDefault("killswitch.device", DefaultRfkillPath)

	v.SetDefault("zeroconf.enabled", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", AppName)
	v.SetDefault("mqtt.topic_prefix", AppName)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("LogLevel", "WARN")
	v.SetDefault("LogLevels", map[string]string{})
}

// New loads the configuration from /etc/odio-bluetooth/config.yaml or
// ~/.config/odio-bluetooth/config.yaml, falling back to defaults.
func New() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join("/etc", AppName))
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", AppName))
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with defaults if not found
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			logger.Warn("[config] failed to read config: %v", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	port := v.GetInt("api.port")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", port)
	}

	bind := v.GetString("bind")
	var interfaces []net.Interface
	inet, err := interfaceForIP(bind)
	if err == nil && inet != nil {
		interfaces = append(interfaces, *inet)
	}

	timeout := v.GetDuration("bluetooth.timeout")
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	passkey := v.GetUint32("bluetooth.agent.passkey")
	if passkey > 999999 {
		return nil, fmt.Errorf("invalid agent passkey: %d", passkey)
	}

	qos := v.GetInt("mqtt.qos")
	if qos < 0 || qos > 2 {
		return nil, fmt.Errorf("invalid mqtt qos: %d", qos)
	}

	agentPath := v.GetString("bluetooth.agent.path")
	if !strings.HasPrefix(agentPath, "/") {
		return nil, fmt.Errorf("invalid agent path: %q", agentPath)
	}

	apiCfg := ApiConfig{
		Enabled: v.GetBool("api.enabled"),
		Bind:    bind,
		Port:    port,
		SSE:     v.GetBool("api.sse"),
	}
	if origins := v.GetStringSlice("api.cors.origins"); len(origins) > 0 {
		apiCfg.CORS = &CORSConfig{Origins: origins}
	}

	btCfg := BluetoothConfig{
		Enabled:       v.GetBool("bluetooth.enabled"),
		Timeout:       timeout,
		CatalogPath:   v.GetString("bluetooth.catalog"),
		ProbeCacheTTL: v.GetDuration("bluetooth.probe_cache_ttl"),
		Agent: &AgentConfig{
			Enabled:    v.GetBool("bluetooth.agent.enabled"),
			Path:       agentPath,
			AutoAccept: v.GetBool("bluetooth.agent.auto_accept"),
			PinCode:    v.GetString("bluetooth.agent.pin"),
			Passkey:    passkey,
		},
	}

	ksCfg := KillswitchConfig{
		Enabled:    v.GetBool("killswitch.enabled"),
		DevicePath: v.GetString("killswitch.device"),
	}

	zeroCfg := ZeroConfig{
		Enabled:      v.GetBool("zeroconf.enabled"),
		InstanceName: AppName,
		ServiceType:  serviceType,
		Port:         port,
		Domain:       domain,
		TxtRecords:   []string{"version=" + AppVersion},
		Listen:       interfaces,
	}

	mqttCfg := MQTTConfig{
		Enabled:     v.GetBool("mqtt.enabled"),
		Broker:      v.GetString("mqtt.broker"),
		ClientID:    v.GetString("mqtt.client_id"),
		Username:    v.GetString("mqtt.username"),
		Password:    v.GetString("mqtt.password"),
		TopicPrefix: strings.TrimSuffix(v.GetString("mqtt.topic_prefix"), "/"),
		QoS:         byte(qos),
		Retain:      v.GetBool("mqtt.retain"),
	}

	cfg := Config{
		Api:        &apiCfg,
		Bluetooth:  &btCfg,
		Killswitch: &ksCfg,
		Zeroconf:   &zeroCfg,
		MQTT:       &mqttCfg,
		LogLevel:   parseLogLevel(v.GetString("LogLevel")),
		LogLevels:  parseLogLevels(v.GetStringMapString("LogLevels")),
	}

	return &cfg, nil
}
