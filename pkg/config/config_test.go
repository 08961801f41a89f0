package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/models"
)

func TestDefaultLimits(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	free := cfg.RateLimits.For(models.PlanFree)
	assert.Equal(t, 10, free.Sync)
	assert.Equal(t, 50, free.Async)
	assert.Equal(t, 50, free.Test)

	enterprise := cfg.RateLimits.For(models.PlanEnterprise)
	assert.Equal(t, 150, enterprise.Sync)
	assert.Equal(t, 1000, enterprise.Async)

	assert.Equal(t, free, cfg.RateLimits.For("unknown"))
	assert.InDelta(t, 100.0, cfg.Usage.CostLimit(models.PlanPro), 0.001)
	assert.InDelta(t, 10.0, cfg.Usage.CostLimit("unknown"), 0.001)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Error(t, cfg.Validate(), "missing token secret")

	cfg.TestTokenSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.RateLimits.Window = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadLimitsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "limits.yaml")
	content := `
rate_limits:
  pro:
    sync: 40
    async: 400
    test: 20
cost_limits:
  team: 750
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := config.Default()
	require.NoError(t, config.LoadLimitsFile(&cfg, path))

	pro := cfg.RateLimits.For(models.PlanPro)
	assert.Equal(t, 40, pro.Sync)
	assert.Equal(t, 400, pro.Async)
	assert.Equal(t, 20, pro.Test)
	assert.Equal(t, 10, cfg.RateLimits.For(models.PlanFree).Sync)
	assert.InDelta(t, 750.0, cfg.Usage.CostLimit(models.PlanTeam), 0.001)

	assert.Error(t, config.LoadLimitsFile(&cfg, filepath.Join(t.TempDir(), "missing.yaml")))
}
