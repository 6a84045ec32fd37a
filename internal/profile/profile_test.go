package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, ModelMarkov, p.Model)
	assert.False(t, p.HasDelay())
}

func TestParse(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		p, err := Parse([]byte(`
name: nightly
control_uri: https://idm.example.com
seed: 1234
person_count: 500
groups: [ops, dev]
absent_ratio: 0.1
disable_mfa_policy: true
model: basic
delay_mean_ms: 250
delay_std_dev_ms: 50
test_time: 30m
warmup_time: 10s
max_concurrency: 64
rate_limit: 200
`))
		require.NoError(t, err)
		assert.Equal(t, "nightly", p.Name)
		require.NotNil(t, p.Seed)
		assert.Equal(t, uint64(1234), *p.Seed)
		assert.Equal(t, 500, p.PersonCount)
		assert.Equal(t, []string{"ops", "dev"}, p.Groups)
		assert.True(t, p.DisableMFAPolicy)
		assert.Equal(t, ModelBasic, p.Model)
		assert.True(t, p.HasDelay())
		assert.Equal(t, 30*time.Minute, p.TestTime)
		assert.Equal(t, 10*time.Second, p.WarmupTime)
		assert.Equal(t, 64, p.MaxConcurrency)
		assert.Equal(t, 200.0, p.RateLimit)
	})

	t.Run("defaults applied", func(t *testing.T) {
		p, err := Parse([]byte(`name: tiny`))
		require.NoError(t, err)
		assert.Equal(t, "tiny", p.Name)
		assert.Equal(t, 10, p.PersonCount)
		assert.Equal(t, ModelMarkov, p.Model)
		assert.Equal(t, time.Minute, p.TestTime)
		assert.Nil(t, p.Seed)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := map[string]string{
			"unknown model":    "model: random",
			"negative persons": "person_count: -1",
			"absent ratio":     "absent_ratio: 2",
			"negative delay":   "delay_mean_ms: -5",
			"negative rate":    "rate_limit: -1",
			"bad yaml":         "name: [",
		}
		for name, doc := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := Parse([]byte(doc))
				assert.Error(t, err)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: file\nperson_count: 3\n"), 0o600))

	t.Setenv("ORCA_SEED", "77")
	t.Setenv("ORCA_PERSON_COUNT", "12")
	t.Setenv("ORCA_TEST_TIME", "2m")
	t.Setenv("ORCA_CONTROL_URI", "memory://env")

	p, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, p.Seed)
	assert.Equal(t, uint64(77), *p.Seed)
	assert.Equal(t, 12, p.PersonCount)
	assert.Equal(t, 2*time.Minute, p.TestTime)
	assert.Equal(t, "memory://env", p.ControlURI)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	for _, key := range []string{"ORCA_SEED", "ORCA_PERSON_COUNT", "ORCA_TEST_TIME"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "not-a-number")
			assert.Error(t, LoadFromEnv(Default()))
		})
	}

	t.Run("model override validated by Load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: file\n"), 0o600))
		t.Setenv("ORCA_MODEL", "chaotic")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("ORCA_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("ORCA_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("ORCA_TEST_UNSET_VALUE", "fallback"))
}
