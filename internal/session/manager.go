package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"improv-client/internal/keypoints"
	"improv-client/internal/models"
	"improv-client/internal/story"

	"go.uber.org/zap"
)

// adventureSnapshot — запись режима приключения: помимо истории несет
// персонажа, завязку и стиль картинок.
type adventureSnapshot struct {
	story.Snapshot
	Character *models.Character `json:"character,omitempty"`
	Premise   *models.Premise   `json:"premise,omitempty"`
	Image     *models.ImageSpec `json:"image,omitempty"`
}

// Manager владеет тремя стейт-машинами режимов, таблицей ключевых точек,
// настройками и идентичностью сессии. Ядро не полагается на глобальные
// синглтоны: всем слоям передается явный экземпляр менеджера.
type Manager struct {
	mu sync.Mutex

	info  models.SessionInfo
	prefs models.Preferences

	character *models.Character
	premise   *models.Premise
	image     *models.ImageSpec

	keyPoints *keypoints.Table
	machines  map[models.Mode]*story.Machine

	repo   Repository
	logger *zap.Logger
}

// NewManager создает менеджер сессии. Таблица ключевых точек подключается
// стоком только к машине приключения — практики ключевых точек не ведут.
func NewManager(repo Repository, logger *zap.Logger) *Manager {
	table := keypoints.New(logger)
	return &Manager{
		prefs:     models.DefaultPreferences(),
		keyPoints: table,
		machines: map[models.Mode]*story.Machine{
			models.ModeAdventure:   story.NewMachine(models.ModeAdventure, table, logger),
			models.ModeEndings:     story.NewMachine(models.ModeEndings, nil, logger),
			models.ModeThreeThings: story.NewMachine(models.ModeThreeThings, nil, logger),
		},
		repo:   repo,
		logger: logger.Named("SessionManager"),
	}
}

// InitSession задает идентичность новой сессии со случайным аватаром.
func (m *Manager) InitSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.info = models.SessionInfo{
		ID:     id,
		Start:  now,
		Update: now,
		Avatar: models.RandomAvatar(),
	}
	m.logger.Info("Сессия инициализирована", zap.String("session_id", id))
}

// Session возвращает копию идентичности сессии.
func (m *Manager) Session() models.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.info
	info.Log = append([]models.LogEntry(nil), m.info.Log...)
	return info
}

// AddLog пишет событие в журнал сессии. Данные сериализуются как есть.
func (m *Manager) AddLog(eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		m.logger.Warn("Событие журнала не сериализуется", zap.String("type", eventType), zap.Error(err))
		raw = nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.info.Update = now
	m.info.Log = append(m.info.Log, models.LogEntry{Time: now, Type: eventType, Data: raw})
}

// Machine возвращает стейт-машину режима.
func (m *Manager) Machine(mode models.Mode) *story.Machine {
	return m.machines[mode]
}

// KeyPoints возвращает таблицу ключевых точек сессии.
func (m *Manager) KeyPoints() *keypoints.Table {
	return m.keyPoints
}

// Preferences возвращает текущие настройки.
func (m *Manager) Preferences() models.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs
}

// SetPreferences заменяет настройки целиком.
func (m *Manager) SetPreferences(prefs models.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = prefs
}

// SetCharacter фиксирует персонажа приключения (картинка может прийти позже).
func (m *Manager) SetCharacter(character models.Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.character = &character
}

// SetPremise фиксирует завязку приключения.
func (m *Manager) SetPremise(premise models.Premise) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.premise = &premise
}

// SetImage фиксирует стиль и адрес картинки персонажа.
func (m *Manager) SetImage(image models.ImageSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.image = &image
}

// Character возвращает персонажа приключения (nil, если не задан).
func (m *Manager) Character() *models.Character {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.character
}

// Premise возвращает завязку приключения (nil, если не задана).
func (m *Manager) Premise() *models.Premise {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.premise
}

// Image возвращает стиль картинок приключения (nil, если не задан).
func (m *Manager) Image() *models.ImageSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.image
}

// ResetAll — полный сброс сессии: машины, таблица, настройки, идентичность
// и все записи хранилища. Единственное место, где чистится таблица.
func (m *Manager) ResetAll(ctx context.Context) error {
	for _, machine := range m.machines {
		machine.Reset()
	}
	m.keyPoints.Reset()

	m.mu.Lock()
	sessionID := m.info.ID
	m.info = models.SessionInfo{}
	m.prefs = models.DefaultPreferences()
	m.character = nil
	m.premise = nil
	m.image = nil
	m.mu.Unlock()

	if sessionID == "" {
		return nil
	}
	return m.repo.Delete(ctx, sessionID,
		StoreAdventure, StoreEndings, StoreThreeThings,
		StoreKeyPoints, StorePreferences, StoreSession)
}

// Save сохраняет все записи сессии под фиксированными именами.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	sessionID := m.info.ID
	info := m.info
	prefs := m.prefs
	adventure := adventureSnapshot{
		Snapshot:  m.machines[models.ModeAdventure].Snapshot(),
		Character: m.character,
		Premise:   m.premise,
		Image:     m.image,
	}
	m.mu.Unlock()

	if sessionID == "" {
		return models.ErrInvalidState
	}

	records := map[string]any{
		StoreSession:     info,
		StorePreferences: prefs,
		StoreAdventure:   adventure,
		StoreEndings:     m.machines[models.ModeEndings].Snapshot(),
		StoreThreeThings: m.machines[models.ModeThreeThings].Snapshot(),
		StoreKeyPoints:   m.keyPoints.Snapshot(),
	}
	for name, value := range records {
		if err := m.repo.Save(ctx, sessionID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// Load восстанавливает сессию из хранилища. Отсутствующие записи пропускаются:
// частично сохраненная сессия остается рабочей.
func (m *Manager) Load(ctx context.Context, sessionID string) error {
	var info models.SessionInfo
	if err := m.repo.Load(ctx, sessionID, StoreSession, &info); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return err
	}

	var prefs models.Preferences
	if err := m.repo.Load(ctx, sessionID, StorePreferences, &prefs); err == nil {
		m.SetPreferences(prefs)
	}

	var adventure adventureSnapshot
	if err := m.repo.Load(ctx, sessionID, StoreAdventure, &adventure); err == nil {
		m.machines[models.ModeAdventure].Restore(adventure.Snapshot)
		m.mu.Lock()
		m.character = adventure.Character
		m.premise = adventure.Premise
		m.image = adventure.Image
		m.mu.Unlock()
	}

	var endings story.Snapshot
	if err := m.repo.Load(ctx, sessionID, StoreEndings, &endings); err == nil {
		m.machines[models.ModeEndings].Restore(endings)
	}

	var threeThings story.Snapshot
	if err := m.repo.Load(ctx, sessionID, StoreThreeThings, &threeThings); err == nil {
		m.machines[models.ModeThreeThings].Restore(threeThings)
	}

	var table keypoints.Snapshot
	if err := m.repo.Load(ctx, sessionID, StoreKeyPoints, &table); err == nil {
		m.keyPoints.Restore(table)
	}

	m.mu.Lock()
	m.info = info
	m.mu.Unlock()
	m.logger.Info("Сессия восстановлена", zap.String("session_id", sessionID))
	return nil
}
