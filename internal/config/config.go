// Package config resolves the node's runtime configuration from CLI flags
// falling back to environment variables of the same lowercase name, per
// the viper BindPFlag/BindEnv idiom.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the fully resolved, validated configuration for one node.
type Config struct {
	// Connect is the seed peer address, or "" if this node is itself a
	// seed (it accepts connections but does not initiate until contacted).
	Connect string
	// Period is the payload-broadcast period in seconds, 1-255.
	Period uint8
	// Port is the TCP listening port; the node binds 127.0.0.1:Port.
	Port uint16
	// MetricsPort is the auxiliary control-plane HTTP port; 0 disables it.
	MetricsPort uint16
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads v (already bound to CLI flags and environment variables) into
// a validated Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Connect:     v.GetString("connect"),
		Port:        uint16(v.GetUint("port")),
		MetricsPort: uint16(v.GetUint("metrics_port")),
		LogLevel:    v.GetString("log_level"),
	}

	if cfg.Port == 0 {
		return cfg, fmt.Errorf("listening port must be set")
	}

	period := v.GetInt("period")
	if period < 1 || period > 255 {
		return cfg, fmt.Errorf("period must be set, between 1 and 255 seconds, got %d", period)
	}
	cfg.Period = uint8(period)

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if !validLogLevels[cfg.LogLevel] {
		return cfg, fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}

	return cfg, nil
}
