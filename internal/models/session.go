package models

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
)

// LogEntry is one event recorded in the session activity log.
type LogEntry struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionInfo holds the cross-cutting identity of one browsing session.
// Живет только в пределах сессии, очищается при полном сбросе.
type SessionInfo struct {
	ID     string     `json:"id"`
	Start  time.Time  `json:"start"`
	Update time.Time  `json:"update"`
	Avatar string     `json:"avatar"`
	Log    []LogEntry `json:"log,omitempty"`
}

// RandomAvatar выбирает один из шести пользовательских аватаров.
func RandomAvatar() string {
	return fmt.Sprintf("user%d.png", rand.Intn(6)+1)
}

// Preferences is the read-mostly user configuration consumed by the core.
type Preferences struct {
	AudioVolume           float64 `json:"audioVolume"`
	AudioSpeed            float64 `json:"audioSpeed"`
	Language              string  `json:"language"`
	AutoReadStorySections bool    `json:"autoReadStorySections"`
	IncludeStoryImages    bool    `json:"includeStoryImages"`
	StoryComplexity       int     `json:"storyComplexity"`
}

// DefaultPreferences возвращает настройки по умолчанию (английский, картинки включены).
func DefaultPreferences() Preferences {
	return Preferences{
		AudioVolume:        1,
		AudioSpeed:         1,
		Language:           "en",
		IncludeStoryImages: true,
		StoryComplexity:    3,
	}
}
