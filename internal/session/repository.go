package session

import (
	"context"
	"encoding/json"
	"sync"

	"improv-client/internal/models"
)

// Фиксированные имена записей session-хранилища: по одной на режим,
// плюс таблица ключевых точек, настройки и идентичность сессии.
const (
	StoreAdventure   = "adventure"
	StoreEndings     = "endings"
	StoreThreeThings = "3things"
	StoreKeyPoints   = "keypoints"
	StorePreferences = "preferences"
	StoreSession     = "session"
)

// Repository хранит записи состояния в пределах одной сессии.
// Записи живут только время сессии и не переживают перезапуск.
type Repository interface {
	Save(ctx context.Context, sessionID string, name string, value any) error
	// Load возвращает models.ErrNotFound, если записи нет.
	Load(ctx context.Context, sessionID string, name string, out any) error
	Delete(ctx context.Context, sessionID string, names ...string) error
}

// memoryRepository — хранилище в памяти процесса: для тестов и работы без Redis.
type memoryRepository struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryRepository создает пустое хранилище в памяти.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string][]byte)}
}

func memoryKey(sessionID, name string) string { return sessionID + ":" + name }

func (r *memoryRepository) Save(_ context.Context, sessionID string, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[memoryKey(sessionID, name)] = raw
	return nil
}

func (r *memoryRepository) Load(_ context.Context, sessionID string, name string, out any) error {
	r.mu.RLock()
	raw, ok := r.records[memoryKey(sessionID, name)]
	r.mu.RUnlock()
	if !ok {
		return models.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (r *memoryRepository) Delete(_ context.Context, sessionID string, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.records, memoryKey(sessionID, name))
	}
	return nil
}
