package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// GatewayConfig tunes the simulated settlement gateway.
type GatewayConfig struct {
	MinLatency  time.Duration `mapstructure:"minLatency"`
	MaxLatency  time.Duration `mapstructure:"maxLatency"`
	FailureRate float64       `mapstructure:"failureRate"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MinLatency:  50 * time.Millisecond,
		MaxLatency:  500 * time.Millisecond,
		FailureRate: 0.05,
	}
}

type GatewayConfigHolder struct {
	current atomic.Value // holds GatewayConfig
}

// NewStaticGatewayConfigHolder returns a holder that never reloads.
func NewStaticGatewayConfigHolder(cfg GatewayConfig) *GatewayConfigHolder {
	holder := &GatewayConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewGatewayConfigHolder(appCfg Config, log *zap.Logger) (*GatewayConfigHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(appCfg.Payment.GatewayConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/paycore")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGatewayConfig()
	v.SetDefault("gateway.minLatency", defaults.MinLatency)
	v.SetDefault("gateway.maxLatency", defaults.MaxLatency)
	v.SetDefault("gateway.failureRate", defaults.FailureRate)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg GatewayConfig
	if err := v.UnmarshalKey("gateway", &cfg); err != nil {
		return nil, err
	}
	if err := validateGatewayConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticGatewayConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("gateway.config")

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GatewayConfig
		if err := v.UnmarshalKey("gateway", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateGatewayConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *GatewayConfigHolder) Get() GatewayConfig {
	if h == nil {
		return DefaultGatewayConfig()
	}
	cfg, ok := h.current.Load().(GatewayConfig)
	if !ok {
		return DefaultGatewayConfig()
	}
	return cfg
}

func validateGatewayConfig(cfg GatewayConfig) error {
	if cfg.MinLatency < 0 || cfg.MaxLatency < 0 {
		return errors.New("gateway latency cannot be negative")
	}
	if cfg.MaxLatency < cfg.MinLatency {
		return errors.New("gateway.maxLatency must be >= gateway.minLatency")
	}
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return errors.New("gateway.failureRate must be within [0, 1]")
	}
	return nil
}
