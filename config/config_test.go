package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkatanacio/batch-downloader/config"
	"github.com/gkatanacio/batch-downloader/download"
)

func Test_Load_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "downloads", cfg.OutDir)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 30.0, cfg.Timeout)
	assert.False(t, cfg.Sequential)
	assert.Equal(t, "info", cfg.Log.Level)

	opts := cfg.DownloadOptions()
	assert.Equal(t, uint(8), opts.Concurrency)
	assert.Equal(t, uint(3), opts.Retries)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, download.DefaultBackoffBase, opts.BackoffBase)
	assert.Equal(t, download.DefaultBackoffJitter, opts.BackoffJitter)
}

func Test_Load_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
out_dir: /tmp/out
concurrency: 4
timeout: 2.5
log:
  level: debug
`), 0644))

	t.Setenv("BDL_RETRIES", "7")
	t.Setenv("BDL_LOG_FILE", "/tmp/bdl.log")

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.OutDir)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 7, cfg.Retries)
	assert.Equal(t, 2500*time.Millisecond, cfg.DownloadOptions().Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/bdl.log", cfg.Log.File)
}

func Test_Load_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func Test_Config_Validate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{OutDir: "out", Concurrency: 2, Retries: 1, Timeout: 1}
	}

	testCases := map[string]struct {
		mutate      func(c *config.Config)
		wantErr     bool
		specificErr error
	}{
		"valid": {
			mutate: func(c *config.Config) {},
		},
		"zero concurrency": {
			mutate:      func(c *config.Config) { c.Concurrency = 0 },
			wantErr:     true,
			specificErr: download.ErrInvalidConcurrency,
		},
		"zero concurrency in sequential mode": {
			mutate: func(c *config.Config) { c.Concurrency = 0; c.Sequential = true },
		},
		"negative retries": {
			mutate:  func(c *config.Config) { c.Retries = -1 },
			wantErr: true,
		},
		"zero timeout": {
			mutate:  func(c *config.Config) { c.Timeout = 0 },
			wantErr: true,
		},
		"negative rate": {
			mutate:  func(c *config.Config) { c.LimitRate = -5 },
			wantErr: true,
		},
	}

	for scenario, tc := range testCases {
		t.Run(scenario, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			if tc.specificErr != nil {
				assert.ErrorIs(t, err, tc.specificErr)
			}
		})
	}
}

func Test_Config_Sequential(t *testing.T) {
	cfg := config.Config{Concurrency: 8, Sequential: true, Timeout: 1}

	assert.Equal(t, 1, cfg.EffectiveConcurrency())
	assert.Equal(t, uint(1), cfg.DownloadOptions().Concurrency)
}
