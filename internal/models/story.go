package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode идентифицирует один из трех независимых игровых режимов.
// У каждого режима собственный экземпляр стейт-машины и собственная запись в хранилище.
type Mode string

const (
	ModeAdventure   Mode = "adventure" // Основная история
	ModeEndings     Mode = "endings"   // Практика концовок
	ModeThreeThings Mode = "3things"   // Практика "три вещи"
)

// StoreName возвращает фиксированное имя записи в session-хранилище для режима.
func (m Mode) StoreName() string { return string(m) }

// Action represents a single continuation choice offered to the user within a story part.
// Identity is the synthetic ID assigned at creation time; Title is display-only.
type Action struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"desc"`
	Active      bool      `json:"active"`
	Used        bool      `json:"used"`
	IsImprov    bool      `json:"isImprov"`
}

// StoryPart is one beat of narrative. A part produced by free-form improvisation
// carries Improv=true and no actions until a continuation is synthesized.
type StoryPart struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Sentiment string    `json:"sentiment,omitempty"`
	KeyMoment string    `json:"keymoment,omitempty"`
	ImageURL  string    `json:"image,omitempty"`
	Who       []string  `json:"who,omitempty"`
	Where     string    `json:"where,omitempty"`
	Objects   []string  `json:"objects,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
	Improv    bool      `json:"improv"`
}

// HasKeyPoints сообщает, несет ли часть полный набор ключевых данных.
// Строка таблицы создается только когда присутствуют все три поля.
func (p *StoryPart) HasKeyPoints() bool {
	return len(p.Who) > 0 && p.Where != "" && len(p.Objects) > 0
}

// Story is the ordered, append-only sequence of parts for one mode.
// Only the last part is updated in place (actions, image).
type Story struct {
	ID    uuid.UUID   `json:"id"`
	Start time.Time   `json:"start"`
	Parts []StoryPart `json:"parts"`
}

// LastPart возвращает указатель на последнюю часть или nil для пустой истории.
func (s *Story) LastPart() *StoryPart {
	if s == nil || len(s.Parts) == 0 {
		return nil
	}
	return &s.Parts[len(s.Parts)-1]
}

// Character describes the protagonist supplied to the narrative collaborator.
type Character struct {
	FullName  string `json:"fullname"`
	Backstory string `json:"backstory"`
}

// Premise describes the starting situation of an adventure.
type Premise struct {
	Title       string `json:"title"`
	Description string `json:"desc"`
}

// ImageSpec holds the visual style shared by all generated story images.
type ImageSpec struct {
	URL   string `json:"url,omitempty"`
	Style string `json:"style,omitempty"`
}

// Hints maps a category to the hint the user picked for an improvisation.
// Отобранные подсказки уходят вместе с загрузкой импровизации.
type Hints map[string]string

// HintCategory is one fetched category with its candidate hints.
type HintCategory struct {
	Category   string   `json:"category"`
	Candidates []string `json:"candidates"`
}
