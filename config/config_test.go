package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, 100, cfg.CallBatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("subgraph-url: https://file.example\npage-size: 250\nrpc: https://rpc.file\n"), 0o600))

	t.Setenv("LPSNAPSHOT_PAGE_SIZE", "300")
	t.Setenv("LPSNAPSHOT_MAX_RETRIES", "9")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Int("max-retries", 5, "")
	require.NoError(t, flags.Parse([]string{"--rpc", "https://rpc.flag"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example", cfg.SubgraphURL)
	// env beats file
	assert.Equal(t, 300, cfg.PageSize)
	// an explicitly set flag beats file
	assert.Equal(t, "https://rpc.flag", cfg.RPCURL)
	// env beats an unset flag default
	assert.Equal(t, 9, cfg.MaxRetries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		SubgraphURL:     "https://subgraph.example",
		RPCURL:          "https://rpc.example",
		PositionManager: "0x00c7f3082833e796A5b3e4Bd59f6642FF44DCD15",
		PageSize:        1000,
		CallBatchSize:   100,
		ComposeBatch:    500,
	}
	require.NoError(t, valid.Validate(true))

	testCases := []struct {
		name    string
		mutate  func(*Config)
		needRPC bool
	}{
		{name: "missing subgraph", mutate: func(c *Config) { c.SubgraphURL = "" }},
		{name: "missing rpc", mutate: func(c *Config) { c.RPCURL = "" }, needRPC: true},
		{name: "bad position manager", mutate: func(c *Config) { c.PositionManager = "nfpm" }, needRPC: true},
		{name: "zero page size", mutate: func(c *Config) { c.PageSize = 0 }},
		{name: "zero call batch", mutate: func(c *Config) { c.CallBatchSize = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -2 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate(tc.needRPC))
		})
	}

	t.Run("rpc settings are optional without fee reads", func(t *testing.T) {
		cfg := valid
		cfg.RPCURL = ""
		cfg.PositionManager = ""
		assert.NoError(t, cfg.Validate(false))
	})
}
