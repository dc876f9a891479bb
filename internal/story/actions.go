package story

import (
	"improv-client/internal/models"

	"github.com/google/uuid"
)

// Заголовки синтетических действий. Заголовок остается отображаемым текстом,
// идентичность действия — его ID; заголовок используется только как запасной
// ключ для маркера свободной импровизации.
const (
	ImproviseTitle = "Improvise"
	NextTitle      = "Next"
	TryAgainTitle  = "Try again"
	FinishTitle    = "Finish"
)

// ImproviseAction синтезирует неявное импровизационное действие первой части.
func ImproviseAction() models.Action {
	return models.Action{
		ID:          uuid.New(),
		Title:       ImproviseTitle,
		Description: "Use your improvisation to progress the story!",
		Active:      true,
		Used:        false,
		IsImprov:    true,
	}
}

// EndingContinuations синтезирует тройку действий, предлагаемых после попытки
// завершить историю в режиме практики концовок.
func EndingContinuations() []models.Action {
	return []models.Action{
		{
			ID:          uuid.New(),
			Title:       NextTitle,
			Description: "Generate a new story to conclude!",
			Active:      true,
		},
		{
			ID:          uuid.New(),
			Title:       TryAgainTitle,
			Description: "Try to finish the previous story again!",
			Active:      true,
		},
		{
			ID:          uuid.New(),
			Title:       FinishTitle,
			Description: "Finish the practice and return to the main screen!",
			Active:      true,
		},
	}
}
