package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSpecies = `
id: brown_trout
name: Brown Trout
weights:
  flow: 0.3
  velocity: 0.25
  thermal: 0.3
  stability: 0.15
velocity:
  min_tolerable: 0.1
  min_optimal: 0.3
  max_optimal: 0.8
  max_tolerable: 1.5
flow_percentile:
  min: 30
  max: 70
temperature:
  optimal_min: 10
  optimal_max: 16
  stress: 20
  critical: 25
min_bdi: 0.5
`

const validHatch = `
id: pmd
name: Pale Morning Dun
flow_percentile:
  min: 40
  max: 75
allowed_limbs: [none, weak]
velocity:
  min: 0.2
  max: 0.8
min_bdi: 0.55
window:
  start: 152
  end: 243
`

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadCatalog(t *testing.T) {
	speciesDir := t.TempDir()
	hatchesDir := t.TempDir()
	writeDoc(t, speciesDir, "brown_trout.yaml", validSpecies)
	writeDoc(t, hatchesDir, "pmd.yaml", validHatch)
	writeDoc(t, hatchesDir, "notes.txt", "not a document")

	cat, err := LoadCatalog(DocumentsConfig{SpeciesDir: speciesDir, HatchesDir: hatchesDir})
	require.NoError(t, err)

	s, ok := cat.Species("brown_trout")
	require.True(t, ok)
	assert.Equal(t, "Brown Trout", s.Name)
	assert.InDelta(t, 1.0, s.Weights.Sum(), 1e-9)

	hatches := cat.AllHatches()
	require.Len(t, hatches, 1)
	assert.Equal(t, "pmd", hatches[0].ID)
	assert.Equal(t, 152, hatches[0].Window.Start)
}

func TestLoadCatalog_InvalidWeights(t *testing.T) {
	speciesDir := t.TempDir()
	bad := `
id: rainbow_trout
name: Rainbow Trout
weights: {flow: 0.5, velocity: 0.5, thermal: 0.5, stability: 0.5}
velocity: {min_tolerable: 0.1, min_optimal: 0.3, max_optimal: 0.8, max_tolerable: 1.5}
flow_percentile: {min: 30, max: 70}
temperature: {optimal_min: 10, optimal_max: 16, stress: 20, critical: 25}
min_bdi: 0.4
`
	writeDoc(t, speciesDir, "rainbow.yaml", bad)

	_, err := LoadCatalog(DocumentsConfig{SpeciesDir: speciesDir, HatchesDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights sum")
}

func TestLoadCatalog_DuplicateID(t *testing.T) {
	speciesDir := t.TempDir()
	writeDoc(t, speciesDir, "a.yaml", validSpecies)
	writeDoc(t, speciesDir, "b.yaml", validSpecies)

	_, err := LoadCatalog(DocumentsConfig{SpeciesDir: speciesDir, HatchesDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestLoadCatalog_InvalidWindow(t *testing.T) {
	hatchesDir := t.TempDir()
	bad := `
id: baetis
name: Blue-Winged Olive
flow_percentile: {min: 20, max: 60}
allowed_limbs: [weak]
velocity: {min: 0.1, max: 0.6}
min_bdi: 0.3
window: {start: 0, end: 400}
`
	writeDoc(t, hatchesDir, "baetis.yaml", bad)

	_, err := LoadCatalog(DocumentsConfig{SpeciesDir: t.TempDir(), HatchesDir: hatchesDir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day-of-year")
}

func TestLoadCatalog_MissingDirsAreEmpty(t *testing.T) {
	cat, err := LoadCatalog(DocumentsConfig{
		SpeciesDir: filepath.Join(t.TempDir(), "absent"),
		HatchesDir: filepath.Join(t.TempDir(), "absent"),
	})
	require.NoError(t, err)
	assert.Empty(t, cat.AllSpecies())
	assert.Empty(t, cat.AllHatches())
}
