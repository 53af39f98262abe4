package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegend(t *testing.T) {
	content := `
default_color: "bg-slate-200"

kinds:
  EQP:
    title: "Equipment"
    states:
      - state: RUN
        color: "bg-emerald-500"
        swatch: "🟩"
      - state: DOWN
        color: "bg-rose-600"
`
	path := filepath.Join(t.TempDir(), "legend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	legend, err := ParseLegend(path)
	require.NoError(t, err)

	assert.Equal(t, "bg-slate-200", legend.DefaultColor)
	assert.Equal(t, "Equipment", legend.TitleOf(models.KindEquipmentState))
	assert.Equal(t, "bg-emerald-500", legend.ColorOf(models.KindEquipmentState, "RUN"))
	assert.Equal(t, "bg-slate-200", legend.ColorOf(models.KindEquipmentState, "IDLE"))

	// untouched kinds keep the built-in legend
	assert.Equal(t, "bg-blue-600", legend.ColorOf(models.KindInterlock, "OPEN"))
}

func TestParseLegendErrors(t *testing.T) {
	_, err := ParseLegendFromReader(strings.NewReader("kinds:\n  NOPE:\n    title: x\n"))
	assert.Error(t, err)

	_, err = ParseLegendFromReader(strings.NewReader("kinds: [unclosed"))
	assert.Error(t, err)

	_, err = ParseLegend(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
