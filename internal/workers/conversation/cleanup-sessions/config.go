// internal/workers/conversation/cleanup-sessions/config.go
package cleanupsessions

import (
	"time"

	"agribot-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{Timeout: 60 * time.Second}
	if cfg == nil {
		return c
	}
	if wcfg := config.GetWorkerConfig(cfg, TaskType); wcfg.Timeout > 0 {
		c.Timeout = config.GetDuration(wcfg.Timeout)
	}
	return c
}
