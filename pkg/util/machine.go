package util

import (
	"os"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

const appID = "onyx-note-sync"

var (
	machineID     string
	machineIDOnce sync.Once
)

// GetMachineID returns an app-scoped hash of the host machine id.
// Falls back to the hostname when the platform id is unavailable.
// GetMachineID 返回按应用哈希后的机器 ID，获取失败时退回主机名
func GetMachineID() string {
	machineIDOnce.Do(func() {
		if id, err := machineid.ProtectedID(appID); err == nil && id != "" {
			machineID = id
			return
		}
		if host, err := os.Hostname(); err == nil {
			machineID = strings.TrimSpace(host)
		}
	})
	return machineID
}

// DeviceNamespace derives a stable UUID namespace for a device.
// An explicit deviceID wins over the machine id, so copies of one database keep their keys.
// DeviceNamespace 生成设备级 UUID 命名空间，显式配置的 deviceID 优先于机器 ID
func DeviceNamespace(deviceID string) uuid.UUID {
	if deviceID == "" {
		deviceID = GetMachineID()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(appID+"/"+deviceID))
}
