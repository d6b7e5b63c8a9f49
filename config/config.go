// Package config merges a config file, LPSNAPSHOT_* environment variables and
// command-line flags into a Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "LPSNAPSHOT"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	SubgraphURL     string
	SubgraphAuth    string
	RPCURL          string
	PositionManager string
	PageSize        int
	CallBatchSize   int
	MaxRetries      int
	RetryBackoff    time.Duration
	Workers         int
	ComposeBatch    int
	Listen          string
	RequestTimeout  time.Duration
	LogLevel        string
	Out             string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("page-size", 1000)
	v.SetDefault("call-batch-size", 100)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("workers", 4)
	v.SetDefault("compose-batch", 500)
	v.SetDefault("listen", ":3000")
	v.SetDefault("request-timeout", 2*time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("lpsnapshot")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return Config{
		SubgraphURL:     v.GetString("subgraph-url"),
		SubgraphAuth:    v.GetString("subgraph-auth"),
		RPCURL:          v.GetString("rpc"),
		PositionManager: v.GetString("position-manager"),
		PageSize:        v.GetInt("page-size"),
		CallBatchSize:   v.GetInt("call-batch-size"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		Workers:         v.GetInt("workers"),
		ComposeBatch:    v.GetInt("compose-batch"),
		Listen:          v.GetString("listen"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		LogLevel:        v.GetString("log-level"),
		Out:             v.GetString("out"),
	}, nil
}

// Validate checks the settings every command needs. needRPC is set by commands
// that read on-chain fee state.
func (c Config) Validate(needRPC bool) error {
	var errs []error
	if c.SubgraphURL == "" {
		errs = append(errs, errors.New("subgraph-url is required"))
	}
	if needRPC {
		if c.RPCURL == "" {
			errs = append(errs, errors.New("rpc is required"))
		}
		if !common.IsHexAddress(c.PositionManager) {
			errs = append(errs, fmt.Errorf("position-manager %q is not an address", c.PositionManager))
		}
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page-size must be positive"))
	}
	if c.CallBatchSize <= 0 {
		errs = append(errs, errors.New("call-batch-size must be positive"))
	}
	if c.ComposeBatch <= 0 {
		errs = append(errs, errors.New("compose-batch must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max-retries cannot be negative"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers cannot be negative"))
	}
	return errors.Join(errs...)
}

// PositionManagerAddress returns the position manager as an address.
func (c Config) PositionManagerAddress() common.Address {
	return common.HexToAddress(c.PositionManager)
}
