package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateInstanceID 实例标识，写入日志与事件来源
// 优先使用环境变量 INSTANCE_ID，否则生成
func GenerateInstanceID(name string) string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	if name == "" {
		name = "wallbox-server"
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s-%s", name, hostname, uuid.New().String()[:8])
}
