package story_test

import (
	"testing"

	"improv-client/internal/models"
	"improv-client/internal/story"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	rows [][3]any
}

func (s *recordingSink) AddRow(who []string, where string, objects []string) {
	s.rows = append(s.rows, [3]any{who, where, objects})
}

func newPart(text string) models.StoryPart {
	return models.StoryPart{ID: uuid.New(), Text: text}
}

func TestStart(t *testing.T) {
	t.Run("Endings mode synthesizes the Improvise action", func(t *testing.T) {
		m := story.NewMachine(models.ModeEndings, nil, zap.NewNop())
		require.NoError(t, m.Start(models.StoryPart{Text: "You wake in a forest."}))

		last := m.LastPart()
		require.NotNil(t, last)
		require.Len(t, last.Actions, 1)
		action := last.Actions[0]
		assert.Equal(t, story.ImproviseTitle, action.Title)
		assert.True(t, action.Active)
		assert.False(t, action.Used)
		assert.True(t, action.IsImprov)
		assert.NotEqual(t, uuid.Nil, action.ID)
	})

	t.Run("Adventure mode keeps incoming actions untouched", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		part := newPart("intro")
		part.Actions = []models.Action{{ID: uuid.New(), Title: "Run", Active: true}}
		require.NoError(t, m.Start(part))

		last := m.LastPart()
		require.Len(t, last.Actions, 1)
		assert.Equal(t, "Run", last.Actions[0].Title)
	})

	t.Run("Second Start without Reset fails", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("a")))
		err := m.Start(newPart("b"))
		assert.ErrorIs(t, err, models.ErrStoryExists)

		m.Reset()
		assert.NoError(t, m.Start(newPart("c")))
	})

	t.Run("Start derives a key point row when the part carries all fields", func(t *testing.T) {
		sink := &recordingSink{}
		m := story.NewMachine(models.ModeAdventure, sink, zap.NewNop())
		part := newPart("intro")
		part.Who = []string{"Mira"}
		part.Where = "forest"
		part.Objects = []string{"a lantern"}
		require.NoError(t, m.Start(part))
		assert.Len(t, sink.rows, 1)
	})
}

func TestAppend(t *testing.T) {
	t.Run("Part count equals number of appends since Start", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("p0")))
		for i := 0; i < 5; i++ {
			_, err := m.Append(newPart("part"), false)
			require.NoError(t, err)
		}
		assert.Equal(t, 6, m.PartCount())
	})

	t.Run("Improv append forces empty actions and improv flag", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("p0")))

		part := newPart("The wolf approaches.")
		part.Actions = []models.Action{{ID: uuid.New(), Title: "Hide", Active: true}}
		needActions, err := m.Append(part, true)
		require.NoError(t, err)
		assert.True(t, needActions)

		last := m.LastPart()
		assert.True(t, last.Improv)
		assert.Empty(t, last.Actions)
	})

	t.Run("Non-improv append clears the improv flag", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("p0")))

		part := newPart("continuation")
		part.Improv = true
		_, err := m.Append(part, false)
		require.NoError(t, err)
		assert.False(t, m.LastPart().Improv)
	})

	t.Run("Append without Start fails", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		_, err := m.Append(newPart("x"), false)
		assert.ErrorIs(t, err, models.ErrNoStory)
	})

	t.Run("Append after MarkFinished is rejected", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("p0")))
		m.MarkFinished()
		_, err := m.Append(newPart("late"), false)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.Equal(t, 1, m.PartCount())
	})

	t.Run("Key point rows never outnumber parts", func(t *testing.T) {
		sink := &recordingSink{}
		m := story.NewMachine(models.ModeAdventure, sink, zap.NewNop())
		require.NoError(t, m.Start(newPart("p0")))

		withKP := newPart("p1")
		withKP.Who = []string{"Mira"}
		withKP.Where = "forest"
		withKP.Objects = []string{"a lantern"}
		_, err := m.Append(withKP, false)
		require.NoError(t, err)

		// Часть без полного набора ключевых данных строку не создает
		partial := newPart("p2")
		partial.Where = "cave"
		_, err = m.Append(partial, false)
		require.NoError(t, err)

		assert.Len(t, sink.rows, 1)
		assert.LessOrEqual(t, len(sink.rows), m.PartCount())
	})
}

func TestChooseAction(t *testing.T) {
	actions := func() []models.Action {
		return []models.Action{
			{ID: uuid.New(), Title: "a", Active: true},
			{ID: uuid.New(), Title: "b", Active: true},
			{ID: uuid.New(), Title: "c", Active: true},
		}
	}

	t.Run("Chosen action is used, all become inactive", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		part := newPart("p0")
		part.Actions = actions()
		require.NoError(t, m.Start(part))

		chosen := part.Actions[0]
		require.NoError(t, m.ChooseAction(&chosen))

		got := m.LastPart().Actions
		assert.True(t, got[0].Used)
		assert.False(t, got[1].Used)
		assert.False(t, got[2].Used)
		for _, a := range got {
			assert.False(t, a.Active)
		}
		assert.False(t, m.CanChooseAction())
	})

	t.Run("Nil deactivates the previous part and marks Improvise used", func(t *testing.T) {
		m := story.NewMachine(models.ModeEndings, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("prompt")))

		// Импровизационная часть приходит без действий
		_, err := m.Append(newPart("the improv part"), true)
		require.NoError(t, err)
		require.NoError(t, m.ChooseAction(nil))

		snapshot := m.Story()
		previous := snapshot.Parts[0].Actions
		require.Len(t, previous, 1)
		assert.False(t, previous[0].Active)
		assert.True(t, previous[0].Used)
		assert.Empty(t, snapshot.Parts[1].Actions)
	})

	t.Run("Duplicate titles resolve to the first match", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		part := newPart("p0")
		part.Actions = []models.Action{
			{ID: uuid.New(), Title: story.ImproviseTitle, Active: true},
			{ID: uuid.New(), Title: story.ImproviseTitle, Active: true},
		}
		require.NoError(t, m.Start(part))
		_, err := m.Append(newPart("improv"), true)
		require.NoError(t, err)

		require.NoError(t, m.ChooseAction(nil))
		got := m.Story().Parts[0].Actions
		assert.True(t, got[0].Used)
		assert.False(t, got[1].Used)
	})
}

func TestTryAgain(t *testing.T) {
	t.Run("Duplicates the second-to-last part", func(t *testing.T) {
		m := story.NewMachine(models.ModeEndings, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("prompt")))
		_, err := m.Append(newPart("attempt"), false)
		require.NoError(t, err)

		require.NoError(t, m.TryAgain())
		snapshot := m.Story()
		require.Len(t, snapshot.Parts, 3)
		assert.Equal(t, snapshot.Parts[0].ID, snapshot.Parts[2].ID)
		assert.Equal(t, "prompt", snapshot.Parts[2].Text)
	})

	t.Run("Rejected outside endings mode", func(t *testing.T) {
		m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("p0")))
		_, err := m.Append(newPart("p1"), false)
		require.NoError(t, err)
		assert.ErrorIs(t, m.TryAgain(), models.ErrInvalidState)
	})

	t.Run("Needs at least two parts", func(t *testing.T) {
		m := story.NewMachine(models.ModeEndings, nil, zap.NewNop())
		require.NoError(t, m.Start(newPart("prompt")))
		assert.ErrorIs(t, m.TryAgain(), models.ErrInvalidState)
	})
}

func TestFinishAndReset(t *testing.T) {
	m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
	require.NoError(t, m.Start(newPart("p0")))

	assert.False(t, m.Finished())
	m.MarkFinished()
	m.MarkFinished() // идемпотентно
	assert.True(t, m.Finished())

	m.Reset()
	assert.False(t, m.Finished())
	assert.Equal(t, 0, m.PartCount())
	assert.Nil(t, m.Story())
}

func TestSnapshotRestore(t *testing.T) {
	m := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
	require.NoError(t, m.Start(newPart("p0")))
	_, err := m.Append(newPart("p1"), false)
	require.NoError(t, err)
	m.MarkFinished()

	snap := m.Snapshot()
	restored := story.NewMachine(models.ModeAdventure, nil, zap.NewNop())
	restored.Restore(snap)

	assert.Equal(t, 2, restored.PartCount())
	assert.True(t, restored.Finished())
	assert.Equal(t, m.Story().ID, restored.Story().ID)
}
