package backend

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/b0bbywan/odio-bluetooth/config"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

const (
	UNKNOWN         = "unknown"
	OS_RELEASE_FILE = "/etc/os-release"
)

var osVersion string

type ServerDeviceInfo struct {
	Hostname   string   `json:"hostname"`
	OSPlatform string   `json:"os_platform"`
	OSVersion  string   `json:"os_version"`
	APISW      string   `json:"api_sw"`
	APIVersion string   `json:"api_version"`
	Backends   Backends `json:"backends"`
}

type Backends struct {
	Bluetooth  bool `json:"bluetooth"`
	Agent      bool `json:"agent"`
	Killswitch bool `json:"killswitch"`
	MQTT       bool `json:"mqtt"`
	Zeroconf   bool `json:"zeroconf"`
}

func init() {
	osVersion = readOSRelease(OS_RELEASE_FILE)
}

func parseKeyValue(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		out[key] = strings.Trim(value, `"`)
	}

	return out, scanner.Err()
}

func readOSRelease(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return UNKNOWN
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Warn("[backend] failed to close %s: %v", path, err)
		}
	}()

	content, err := parseKeyValue(file)
	if err != nil {
		logger.Debug("[backend] failed to parse %s: %v", path, err)
	}

	switch {
	case content["PRETTY_NAME"] != "":
		return content["PRETTY_NAME"]
	case content["NAME"] != "":
		return content["NAME"]
	default:
		return UNKNOWN
	}
}

func (b *Backend) GetServerDeviceInfo() (ServerDeviceInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		logger.Debug("[backend] failed to get hostname: %v", err)
		hostname = UNKNOWN
	}

	return ServerDeviceInfo{
		Hostname:   hostname,
		OSPlatform: runtime.GOOS + "/" + runtime.GOARCH,
		OSVersion:  osVersion,
		APISW:      config.AppName,
		APIVersion: config.AppVersion,
		Backends: Backends{
			Bluetooth:  b.Bluetooth != nil,
			Agent:      b.Bluetooth != nil && b.Bluetooth.Agent() != nil,
			Killswitch: b.Killswitch != nil,
			MQTT:       b.MQTT != nil,
			Zeroconf:   b.Zeroconf != nil,
		},
	}, nil
}
