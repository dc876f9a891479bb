package keypoints_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"improv-client/internal/keypoints"
	"improv-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddRow(t *testing.T) {
	t.Run("Rows are numbered monotonically from one", func(t *testing.T) {
		table := keypoints.New(zap.NewNop())
		for i := 0; i < 3; i++ {
			table.AddRow([]string{"Mira"}, "forest", []string{"a lantern"})
		}

		rows := table.Rows()
		require.Len(t, rows, 3)
		for i, row := range rows {
			assert.Equal(t, i+1, row.PartIndex)
			assert.Equal(t, []string{"Mira"}, row.Who)
			assert.Equal(t, "forest", row.Where)
			assert.Equal(t, []string{"a lantern"}, row.Objects)
		}
	})

	t.Run("LastRow returns the newest entry", func(t *testing.T) {
		table := keypoints.New(zap.NewNop())
		_, ok := table.LastRow()
		assert.False(t, ok)

		table.AddRow([]string{"Mira"}, "forest", nil)
		table.AddRow([]string{"Wolf"}, "cave", nil)
		row, ok := table.LastRow()
		require.True(t, ok)
		assert.Equal(t, 2, row.PartIndex)
		assert.Equal(t, "cave", row.Where)
	})
}

func TestProject(t *testing.T) {
	table := keypoints.New(zap.NewNop())
	table.AddRow([]string{"Mira", "Wolf"}, "forest", []string{"a lantern", "a rope"})

	p := table.Project()
	assert.Equal(t, keypoints.DefaultHead, p.Head)
	require.Len(t, p.Body, 1)
	assert.Equal(t, []string{"1", "Mira, Wolf", "forest", "a lantern, a rope"}, p.Body[0])
}

func TestMerge(t *testing.T) {
	newTable := func() *keypoints.Table {
		table := keypoints.New(zap.NewNop())
		table.AddRow([]string{"Mira"}, "forest", []string{"a lantern"})
		return table
	}

	t.Run("Accepts a well-formed translated table", func(t *testing.T) {
		table := newTable()
		translated := keypoints.Projected{
			Head: []string{"Parte", "Chi", "Dove", "Oggetti"},
			Body: [][]string{{"1", "Mira", "foresta", "una lanterna"}},
		}
		require.NoError(t, table.Merge(translated))
		assert.Equal(t, translated, table.View())
	})

	t.Run("Rejects a head that is not four columns", func(t *testing.T) {
		table := newTable()
		err := table.Merge(keypoints.Projected{
			Head: []string{"Parte", "Chi", "Dove"},
			Body: [][]string{{"1", "Mira", "foresta", "una lanterna"}},
		})
		assert.ErrorIs(t, err, models.ErrFormat)
		// Прежние значения не затерты
		assert.Equal(t, keypoints.DefaultHead, table.View().Head)
	})

	t.Run("Rejects a body row that is not four cells", func(t *testing.T) {
		table := newTable()
		err := table.Merge(keypoints.Projected{
			Head: []string{"Parte", "Chi", "Dove", "Oggetti"},
			Body: [][]string{{"1", "Mira", "foresta"}},
		})
		assert.ErrorIs(t, err, models.ErrFormat)
	})
}

func TestReset(t *testing.T) {
	table := keypoints.New(zap.NewNop())
	table.AddRow([]string{"Mira"}, "forest", nil)
	table.Reset()
	assert.Equal(t, 0, table.Len())
	// Нумерация начинается заново
	table.AddRow([]string{"Wolf"}, "cave", nil)
	row, ok := table.LastRow()
	require.True(t, ok)
	assert.Equal(t, 1, row.PartIndex)
}

func TestNormalize(t *testing.T) {
	t.Run("English key convention", func(t *testing.T) {
		raw := json.RawMessage(`{"head":["Story Part","Who","Where","Objects"],"body":[[1,["Mira","Wolf"],"forest",["a lantern"]]]}`)
		p, err := keypoints.Normalize(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"Story Part", "Who", "Where", "Objects"}, p.Head)
		require.Len(t, p.Body, 1)
		assert.Equal(t, []string{"1", "Mira, Wolf", "forest", "a lantern"}, p.Body[0])
	})

	t.Run("Localized key convention", func(t *testing.T) {
		raw := json.RawMessage(`{"testa":["Parte","Chi","Dove","Oggetti"],"corpo":[["1","Mira","foresta","una lanterna"]]}`)
		p, err := keypoints.Normalize(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"Parte", "Chi", "Dove", "Oggetti"}, p.Head)
	})

	t.Run("Unrecognized convention is a format error", func(t *testing.T) {
		raw := json.RawMessage(`{"kopf":["a","b","c","d"],"koerper":[]}`)
		_, err := keypoints.Normalize(raw)
		assert.ErrorIs(t, err, models.ErrFormat)
	})

	t.Run("Unsupported cell type is a format error", func(t *testing.T) {
		raw := json.RawMessage(`{"head":["a","b","c","d"],"body":[[{"x":1},"b","c","d"]]}`)
		_, err := keypoints.Normalize(raw)
		assert.ErrorIs(t, err, models.ErrFormat)
	})

	t.Run("Normalize then Merge round trip enforces the four-column shape", func(t *testing.T) {
		table := keypoints.New(zap.NewNop())
		table.AddRow([]string{"Mira"}, "forest", []string{"a lantern"})

		for name, raw := range map[string]string{
			"english":   `{"head":["A","B","C"],"body":[]}`,
			"localized": `{"testa":["A","B","C"],"corpo":[]}`,
		} {
			p, err := keypoints.Normalize(json.RawMessage(raw))
			require.NoError(t, err, name)
			assert.ErrorIs(t, table.Merge(p), models.ErrFormat, fmt.Sprintf("convention %s", name))
		}
	})
}
