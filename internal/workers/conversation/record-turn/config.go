// internal/workers/conversation/record-turn/config.go
package recordturn

import (
	"time"

	"agribot-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// IndexTimeout bounds the analytics write so a slow cluster cannot eat
	// the job's deadline.
	IndexTimeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:      10 * time.Second,
		IndexTimeout: 2 * time.Second,
	}
	if cfg == nil {
		return c
	}
	if wcfg := config.GetWorkerConfig(cfg, TaskType); wcfg.Timeout > 0 {
		c.Timeout = config.GetDuration(wcfg.Timeout)
	}
	return c
}
