package config

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/engine"
)

func TestReadConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ARRANGEMENT_MODEL", "")

	fsys := fstest.MapFS{
		"arrange.yml": {Data: []byte(`
model: gemini-2.5-flash
engine:
  holding_area_start: 100000
  max_slices: 16
  time_signature: {numerator: 7, denominator: 8}
`)},
	}

	cfg, err := ReadConfig(fsys, "arrange.yml")
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, 100000.0, cfg.Engine.HoldingAreaStart)
	assert.Equal(t, 16, cfg.Engine.MaxSlices)
	assert.Equal(t, engine.DefaultSettings().MaxSplitPoints, cfg.Engine.MaxSplitPoints, "unset keys keep defaults")
	assert.Equal(t, barbeat.TimeSignature{Numerator: 7, Denominator: 8}, cfg.Engine.TimeSignature)
}

func TestReadConfigErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.yml":     {Data: []byte("engine: [1, 2]\n")},
		"invalid.yml": {Data: []byte("engine:\n  time_signature: {numerator: 3, denominator: 5}\n")},
	}

	_, err := ReadConfig(fsys, "missing.yml")
	assert.Error(t, err)

	_, err = ReadConfig(fsys, "bad.yml")
	assert.Error(t, err)

	_, err = ReadConfig(fsys, "invalid.yml")
	assert.ErrorIs(t, err, barbeat.ErrInvalidTimeSignature)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, defaultModel, cfg.Model)
	assert.NoError(t, cfg.Engine.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("ARRANGEMENT_MODEL", "o4-mini")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "o4-mini", cfg.Model)

	dir := t.TempDir()
	path := filepath.Join(dir, "arrange.yml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_split_points: 8\n"), 0o644))

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.MaxSplitPoints)
	assert.Equal(t, "o4-mini", cfg.Model)
}
