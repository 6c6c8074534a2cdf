package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "sarthi-smart-offline-v5.0", cfg.Offline.CacheTag)
	assert.Equal(t, []string{"/", "/index.html", "/manifest.json"}, cfg.Offline.CoreManifest)
	assert.Equal(t, 30*time.Second, cfg.Offline.FetchTimeout)
	assert.Equal(t, "sarthi_logged_user", cfg.Session.StorageKey)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, "offline:lifecycle", cfg.Worker.Stream)
	assert.Equal(t, 10*time.Second, cfg.Worker.ClaimInterval)
}

func TestOverridesDecodeSlicesAndDurations(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("offline.coremanifest", "/,/index.html,/offline.html")
	v.Set("offline.fetchtimeout", "5s")
	v.Set("allowcorsorigins", "https://a.example,https://b.example")

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"/", "/index.html", "/offline.html"}, cfg.Offline.CoreManifest)
	assert.Equal(t, 5*time.Second, cfg.Offline.FetchTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowCORSOrigins)
}

func TestEmptyCacheTagRejected(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("offline.cachetag", "")

	_, err := decode(v)
	assert.Error(t, err)
}

func TestProductionRequiresContextSecret(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("environment", "production")

	_, err := decode(v)
	require.Error(t, err)

	v.Set("security.contexttokensecret", "a-real-secret")
	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "a-real-secret", cfg.Security.ContextTokenSecret)
}
