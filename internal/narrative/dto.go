package narrative

import (
	"encoding/json"

	"improv-client/internal/models"

	"github.com/google/uuid"
)

// Конверт ответа нарративного сервиса: {type, message, status, data}.
type envelope struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
}

// Проводные формы. Сервис шлет идентификаторы строками (иногда пустыми),
// поэтому доменные ID присваиваются на нашей стороне при конверсии.
type wireAction struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"desc"`
	Active      bool   `json:"active"`
	Used        bool   `json:"used"`
	IsImprov    bool   `json:"isImprov"`
}

type wirePart struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Sentiment string       `json:"sentiment"`
	KeyMoment string       `json:"keymoment"`
	Image     string       `json:"image"`
	Who       []string     `json:"who"`
	Where     string       `json:"where"`
	Objects   []string     `json:"objects"`
	Actions   []wireAction `json:"actions"`
	Improv    bool         `json:"improv"`
}

type wireStory struct {
	ID    string     `json:"id"`
	Parts []wirePart `json:"parts"`
}

// Bootstrap — результат стартовой импровизации: не часть истории,
// а сгенерированные завязка и персонаж.
type Bootstrap struct {
	Premise   models.Premise   `json:"premise"`
	Character models.Character `json:"character"`
}

// ImprovUpload — запрос загрузки импровизации.
type ImprovUpload struct {
	AudioBase64 string       `json:"audio"`
	Frames      []string     `json:"frames"`
	Hints       models.Hints `json:"hints"`
	Story       string       `json:"story,omitempty"`
	Premise     string       `json:"premise,omitempty"`
	KeyPoint    []string     `json:"keypoint,omitempty"`
	End         bool         `json:"end"`
	Exercise    bool         `json:"exercise"`
}

func parseID(raw string) uuid.UUID {
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}
	return uuid.New()
}

func (w wireAction) toModel() models.Action {
	return models.Action{
		ID:          parseID(w.ID),
		Title:       w.Title,
		Description: w.Description,
		Active:      w.Active,
		Used:        w.Used,
		IsImprov:    w.IsImprov,
	}
}

func (w wirePart) toModel() models.StoryPart {
	part := models.StoryPart{
		ID:        parseID(w.ID),
		Text:      w.Text,
		Sentiment: w.Sentiment,
		KeyMoment: w.KeyMoment,
		ImageURL:  w.Image,
		Who:       w.Who,
		Where:     w.Where,
		Objects:   w.Objects,
		Improv:    w.Improv,
	}
	for _, a := range w.Actions {
		part.Actions = append(part.Actions, a.toModel())
	}
	return part
}

func (w wireStory) toModel() models.Story {
	story := models.Story{ID: parseID(w.ID)}
	for _, p := range w.Parts {
		story.Parts = append(story.Parts, p.toModel())
	}
	return story
}
