package visualiser

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
)

func testRun() []sqlite.PoseRow {
	rows := make([]sqlite.PoseRow, 0, 20)
	for i := 0; i < 20; i++ {
		truth := geom.NewPose2D(-2+0.1*float64(i), 1, 0)
		rows = append(rows, sqlite.PoseRow{
			Cycle:           uint64(i + 1),
			Pose:            geom.NewPose2D(truth.X+0.05, truth.Y-0.02, 0.01),
			Valid:           i > 2,
			HypothesisCount: 1,
			Truth:           &truth,
		})
	}
	return rows
}

// ---------------------------------------------------------------------------
// PNG field plot
// ---------------------------------------------------------------------------

func TestFieldPlot_WritePNG(t *testing.T) {
	t.Parallel()
	fp := FieldPlot{
		Field: field.MustNew(field.DefaultDimensions(), 2),
		Title: "walk",
		Poses: testRun(),
		Hypotheses: []sqlite.HypothesisRow{
			{ID: 4, ClusterID: 0, Pose: geom.NewPose2D(0, 1, 0), Best: true},
			{ID: 5, ClusterID: 2, Pose: geom.NewPose2D(0, -1, 3.1)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, fp.WritePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Greater(t, b.Dx(), b.Dy(), "plot should keep the field's landscape aspect")
}

func TestFieldPlot_SavePNG(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "field.png")
	fp := FieldPlot{Field: field.MustNew(field.DefaultDimensions(), 1), Title: "empty"}

	require.NoError(t, fp.SavePNG(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFieldPlot_RequiresField(t *testing.T) {
	t.Parallel()
	_, err := FieldPlot{}.Build()
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// HTML trajectory page
// ---------------------------------------------------------------------------

func TestTrajectoryPage_Render(t *testing.T) {
	t.Parallel()
	page := TrajectoryPage{
		Field: field.MustNew(field.DefaultDimensions(), 2),
		Title: "walk along the left half",
		Poses: testRun(),
	}

	var buf bytes.Buffer
	require.NoError(t, page.Render(&buf))

	html := buf.String()
	assert.True(t, strings.Contains(html, "walk along the left half"))
	assert.True(t, strings.Contains(html, "estimate"))
	assert.True(t, strings.Contains(html, "Position error"))
}

func TestTrajectoryPage_NoTruthOmitsErrorChart(t *testing.T) {
	t.Parallel()
	rows := testRun()
	for i := range rows {
		rows[i].Truth = nil
	}
	page := TrajectoryPage{Field: field.MustNew(field.DefaultDimensions(), 2), Title: "replay", Poses: rows}

	var buf bytes.Buffer
	require.NoError(t, page.Render(&buf))
	assert.False(t, strings.Contains(buf.String(), "Position error"))
}

func TestTrajectoryPage_RequiresField(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Error(t, TrajectoryPage{}.Render(&buf))
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func TestPositionError(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 5.0, PositionError(geom.NewPose2D(3, 4, 0), geom.NewPose2D(0, 0, 1)), 1e-12)
}

func TestGenerateColors(t *testing.T) {
	t.Parallel()
	assert.Nil(t, generateColors(0))

	colors := generateColors(6)
	require.Len(t, colors, 6)
	seen := map[string]bool{}
	for _, c := range colors {
		seen[hexColor(c)] = true
	}
	assert.Len(t, seen, 6)
}

func TestHexColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "#1f77b4", hexColor(estimateColor))
}
