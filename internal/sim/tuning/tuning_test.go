package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/actionqueue"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults_Validate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	got, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestLoad_RepoSampleConfig(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	require.Equal(t, 500, got.World.Bots)
	require.Equal(t, 3*time.Second, got.PipelineConfig().Arbiter.MaxHold)
	require.Equal(t, actionqueue.EvictOldest, got.PipelineConfig().EvictPolicy)
}

func TestLoad_YAMLOverridesKeepDefaults(t *testing.T) {
	p := writeFile(t, "shard.yaml", `
world:
  bots: 12
queue:
  evict_policy: newest
arbiter:
  max_hold_ms: 1500
`)
	got, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, 12, got.World.Bots)
	require.Equal(t, Defaults().World.Hostiles, got.World.Hostiles)

	pc := got.PipelineConfig()
	require.Equal(t, actionqueue.EvictNewest, pc.EvictPolicy)
	require.Equal(t, 1500*time.Millisecond, pc.Arbiter.MaxHold)
	require.Equal(t, 20*time.Microsecond, pc.Pool.StealBackoffMin)
}

func TestLoad_TOML(t *testing.T) {
	p := writeFile(t, "shard.toml", `
log_level = "debug"

[world]
id = "toml-shard"
tick_rate_hz = 20

[pool]
workers = 8

[behavior]
kite_range = 7.5
`)
	got, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "debug", got.LogLevel)
	require.Equal(t, "toml-shard", got.WorldConfig().ID)
	require.Equal(t, 20, got.WorldConfig().TickRateHz)
	require.Equal(t, 8, got.PoolConfig().Workers)
	require.Equal(t, 7.5, got.Behavior.KiteRange)
}

func TestLoad_SchemaRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":  "world:\n  bogus: 1\n",
		"bad policy":   "queue:\n  evict_policy: random\n",
		"zero tick":    "world:\n  tick_rate_hz: 0\n",
		"wrong type":   "pool:\n  workers: many\n",
		"chance range": "world:\n  cast_chance: 1.5\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", body))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidate_CrossFieldRules(t *testing.T) {
	tu := Defaults()
	tu.Pool.StealBackoffMinUs, tu.Pool.StealBackoffMaxUs = 500, 100
	require.ErrorIs(t, tu.Validate(), ErrInvalidConfig)

	tu = Defaults()
	tu.Pipeline.StallBudgetMs = tu.Pipeline.TickBudgetMs + 1
	require.ErrorIs(t, tu.Validate(), ErrInvalidConfig)

	tu = Defaults()
	tu.Pool.Workers, tu.Pool.MinWorkers = 2, 4
	require.ErrorIs(t, tu.Validate(), ErrInvalidConfig)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(writeFile(t, "shard.json", "{}"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
