package simulation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetByName(t *testing.T) {
	p := PresetByName("heatwave")
	assert.Equal(t, "heatwave", p.Name)
	assert.Equal(t, 1.35, p.DemandModifier)
	assert.Equal(t, RiskHigh, p.Risk)

	// Unknown names fall back to baseline.
	p = PresetByName("does-not-exist")
	assert.Equal(t, "baseline", p.Name)
	assert.Equal(t, 1.0, p.DemandModifier)
}

func TestPresetsSorted(t *testing.T) {
	all := Presets()
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}
}

func TestLoadPresetsMergesOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	content := `
- name: heatwave
  description: Custom heatwave tuning
  demand_modifier: 1.5
  renewable_modifier: 1.0
  risk: critical
- name: grid_islanding
  description: Regional islanding exercise
  demand_modifier: 0.6
  renewable_modifier: 0.9
  risk: medium
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	merged, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, merged, 7)

	byName := make(map[string]Preset, len(merged))
	for _, p := range merged {
		byName[p.Name] = p
	}

	// File entry overrides the builtin on collision.
	assert.Equal(t, 1.5, byName["heatwave"].DemandModifier)
	assert.Equal(t, RiskCritical, byName["heatwave"].Risk)

	// New entry is added alongside builtins.
	assert.Equal(t, 0.6, byName["grid_islanding"].DemandModifier)
	assert.Equal(t, "baseline", byName["baseline"].Name)
}

func TestLoadPresetsErrors(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{not yaml: ["), 0o644))
	_, err = LoadPresets(bad)
	assert.Error(t, err)
}
