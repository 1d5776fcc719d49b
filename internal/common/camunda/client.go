// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"agribot-workers/internal/common/config"
	"agribot-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client with connection retry and a health check.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig bounds the connection attempts made by NewClientWithConfig.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

// ConfigFrom builds a plaintext client configuration from the camunda section.
func ConfigFrom(cfg config.CamundaConfig) *ClientConfig {
	timeout := config.GetDuration(cfg.RequestTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      timeout,
		RetryConfig:            DefaultRetryConfig,
	}
}

// NewClientWithConfig connects to the gateway, retrying with exponential
// backoff until the topology request succeeds.
func NewClientWithConfig(ctx context.Context, cfg *ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}

	var lastErr error
	delay := cfg.RetryConfig.BaseDelay
	for attempt := 1; attempt <= cfg.RetryConfig.MaxRetries; attempt++ {
		client, err := connect(ctx, cfg)
		if err == nil {
			return &Client{client: client, config: cfg}, nil
		}
		lastErr = err

		if attempt == cfg.RetryConfig.MaxRetries {
			break
		}
		log.Warn("zeebe connection failed, retrying", map[string]interface{}{
			"gateway":     cfg.GatewayAddress,
			"attempt":     attempt,
			"maxRetries":  cfg.RetryConfig.MaxRetries,
			"nextRetryIn": delay.String(),
			"error":       err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > cfg.RetryConfig.MaxDelay {
			delay = cfg.RetryConfig.MaxDelay
		}
	}
	return nil, fmt.Errorf("zeebe gateway %s unreachable after %d attempts: %w", cfg.GatewayAddress, cfg.RetryConfig.MaxRetries, lastErr)
}

func connect(ctx context.Context, cfg *ClientConfig) (zbc.Client, error) {
	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if _, err := zeebeClient.NewTopologyCommand().Send(pingCtx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", cfg.GatewayAddress, err)
	}
	return zeebeClient, nil
}

// GetClient returns the raw Zeebe client for opening job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck performs a topology request against the broker.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	_, err := c.client.NewTopologyCommand().Send(ctx)
	if err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
