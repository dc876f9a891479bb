package story

import (
	"sync"
	"time"

	"improv-client/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyPointSink принимает производные ключевые данные добавленной части.
// Реализуется таблицей ключевых точек; подключается только в режиме приключения.
type KeyPointSink interface {
	AddRow(who []string, where string, objects []string)
}

// Snapshot is the persisted form of a machine: one record per mode in the session store.
type Snapshot struct {
	ID       string        `json:"id"`
	Story    *models.Story `json:"story"`
	Finished bool          `json:"finished"`
}

// Machine владеет упорядоченной последовательностью частей истории одного режима.
// Состояния: Empty -> InProgress -> Finished. Переход в Finished одностороний.
// Все мутации идут через методы под мьютексом: таймеры и коллбеки сети могут
// дергать машину из разных горутин.
type Machine struct {
	mu       sync.Mutex
	mode     models.Mode
	story    *models.Story
	finished bool
	sink     KeyPointSink
	logger   *zap.Logger
}

// NewMachine создает пустую стейт-машину режима. sink может быть nil.
func NewMachine(mode models.Mode, sink KeyPointSink, logger *zap.Logger) *Machine {
	return &Machine{
		mode:   mode,
		sink:   sink,
		logger: logger.Named("StoryMachine").With(zap.String("mode", string(mode))),
	}
}

// Mode возвращает режим машины.
func (m *Machine) Mode() models.Mode { return m.mode }

// Start переводит машину из Empty в InProgress с единственной начальной частью.
// Для режимов практики первая часть получает синтетическое действие "Improvise".
// Возвращает ErrStoryExists, если история уже начата (сначала Reset).
func (m *Machine) Start(initial models.StoryPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.story != nil {
		m.logger.Warn("Start вызван при существующей истории", zap.String("story_id", m.story.ID.String()))
		return models.ErrStoryExists
	}

	ensurePartID(&initial)
	if m.mode == models.ModeEndings || m.mode == models.ModeThreeThings {
		// Практика всегда начинается с импровизационного действия в нулевом слоте
		if len(initial.Actions) == 0 {
			initial.Actions = []models.Action{ImproviseAction()}
		} else {
			initial.Actions[0] = ImproviseAction()
		}
	}

	m.story = &models.Story{
		ID:    uuid.New(),
		Start: time.Now().UTC(),
		Parts: []models.StoryPart{initial},
	}
	m.finished = false
	m.deriveKeyPoints(&initial)
	m.logger.Info("История начата", zap.String("story_id", m.story.ID.String()))
	return nil
}

// Append добавляет часть в конец последовательности. isImprov=true принудительно
// очищает список действий и помечает часть как импровизацию, что бы ни пришло на входе.
// Возвращает needActions=true, когда у новой части нет действий и история не завершена:
// сигнал вызывающему слою запросить следующий набор действий у коллаборатора.
func (m *Machine) Append(part models.StoryPart, isImprov bool) (needActions bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.story == nil {
		return false, models.ErrNoStory
	}
	if m.finished {
		m.logger.Warn("Append после завершения истории игнорируется", zap.String("part_text", part.Text))
		return false, models.ErrInvalidState
	}

	ensurePartID(&part)
	if isImprov {
		part.Actions = nil
		part.Improv = true
	} else {
		part.Improv = false
	}

	m.story.Parts = append(m.story.Parts, part)
	m.deriveKeyPoints(&part)
	m.logger.Debug("Часть добавлена",
		zap.String("part_id", part.ID.String()),
		zap.Int("parts_total", len(m.story.Parts)),
		zap.Bool("improv", part.Improv))

	return len(part.Actions) == 0 && !m.finished, nil
}

// UpdateActions заменяет список действий последней части (полученный от коллаборатора).
// Действиям без идентификатора присваивается синтетический.
func (m *Machine) UpdateActions(actions []models.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := m.lastPartLocked()
	if last == nil {
		return models.ErrNoStory
	}
	for i := range actions {
		if actions[i].ID == uuid.Nil {
			actions[i].ID = uuid.New()
		}
	}
	last.Actions = actions
	return nil
}

// ChooseAction помечает все действия текущей (последней) части неактивными, а выбранное —
// использованным. nil означает свободную импровизацию: дополнительно деактивируются
// действия предыдущей части, где помечается использованным синтетическое "Improvise".
// Составное поведение (два обновления за вызов) сохранено сознательно: состояние
// действий отражает историю и не должно заново предлагать уже решенный выбор.
func (m *Machine) ChooseAction(action *models.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.story == nil {
		return models.ErrNoStory
	}

	if action == nil {
		// Маркер без ID: совпадение с сохраненным синтетическим действием идет по заголовку
		action = &models.Action{Title: ImproviseTitle, Active: true, Used: true, IsImprov: true}
		if n := len(m.story.Parts); n >= 2 {
			resolveActions(m.story.Parts[n-2].Actions, action)
		}
	}
	resolveActions(m.lastPartLocked().Actions, action)
	return nil
}

// resolveActions деактивирует все действия списка и помечает использованным первое
// совпавшее. Совпадение по ID, для синтетических действий без ID — по заголовку;
// при дубликатах заголовков обновляется первое в порядке обхода.
func resolveActions(actions []models.Action, chosen *models.Action) {
	matched := false
	for i := range actions {
		actions[i].Active = false
		if matched {
			continue
		}
		if (chosen.ID != uuid.Nil && actions[i].ID == chosen.ID) ||
			(chosen.ID == uuid.Nil && actions[i].Title == chosen.Title) {
			actions[i].Used = true
			matched = true
		}
	}
}

// TryAgain повторно добавляет предпоследнюю часть, давая новую попытку на том же
// приглашении. Дубликат сохраняется как есть: журнал попыток остается полным,
// вместо перезаписи на месте. Только для режима практики концовок.
func (m *Machine) TryAgain() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode != models.ModeEndings {
		return models.ErrInvalidState
	}
	if m.story == nil {
		return models.ErrNoStory
	}
	if len(m.story.Parts) < 2 {
		return models.ErrInvalidState
	}

	redo := m.story.Parts[len(m.story.Parts)-2]
	m.story.Parts = append(m.story.Parts, redo)
	m.logger.Debug("Повтор предпоследней части", zap.String("part_id", redo.ID.String()))
	return nil
}

// MarkFinished переводит машину в Finished. Идемпотентно.
func (m *Machine) MarkFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finished {
		m.finished = true
		m.logger.Info("История завершена")
	}
}

// Finished сообщает, достигнуто ли терминальное состояние.
func (m *Machine) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// Reset очищает последовательность и флаг завершения. Таблицу ключевых точек не трогает:
// ее чистит общий сброс сессии.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.story = nil
	m.finished = false
	m.logger.Info("Машина сброшена")
}

// Story возвращает глубокую копию текущей истории (nil, если не начата).
func (m *Machine) Story() *models.Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneStory(m.story)
}

// PartCount возвращает число частей текущей истории.
func (m *Machine) PartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.story == nil {
		return 0
	}
	return len(m.story.Parts)
}

// CanChooseAction истинно, пока ни одно действие последней части не использовано.
func (m *Machine) CanChooseAction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := m.lastPartLocked()
	if last == nil {
		return false
	}
	for _, a := range last.Actions {
		if a.Used {
			return false
		}
	}
	return true
}

// Text возвращает тексты всех частей по порядку.
func (m *Machine) Text() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.story == nil {
		return nil
	}
	texts := make([]string, 0, len(m.story.Parts))
	for _, p := range m.story.Parts {
		texts = append(texts, p.Text)
	}
	return texts
}

// LastPart возвращает копию последней части (nil для пустой истории).
func (m *Machine) LastPart() *models.StoryPart {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := m.lastPartLocked()
	if last == nil {
		return nil
	}
	cp := *last
	cp.Actions = append([]models.Action(nil), last.Actions...)
	return &cp
}

// UpdateImage прикрепляет URL сгенерированной картинки к части по индексу.
func (m *Machine) UpdateImage(index int, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.story == nil || index < 0 || index >= len(m.story.Parts) {
		return models.ErrInvalidState
	}
	m.story.Parts[index].ImageURL = imageURL
	return nil
}

// Snapshot возвращает сериализуемое состояние для session-хранилища.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Finished: m.finished, Story: cloneStory(m.story)}
	if m.story != nil {
		snap.ID = m.story.ID.String()
	}
	return snap
}

// Restore восстанавливает состояние из снимка, перезаписывая текущее.
func (m *Machine) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.story = cloneStory(snap.Story)
	m.finished = snap.Finished
}

func (m *Machine) lastPartLocked() *models.StoryPart {
	if m.story == nil || len(m.story.Parts) == 0 {
		return nil
	}
	return &m.story.Parts[len(m.story.Parts)-1]
}

func (m *Machine) deriveKeyPoints(part *models.StoryPart) {
	if m.sink == nil || !part.HasKeyPoints() {
		return
	}
	m.sink.AddRow(part.Who, part.Where, part.Objects)
}

func ensurePartID(part *models.StoryPart) {
	if part.ID == uuid.Nil {
		part.ID = uuid.New()
	}
}

func cloneStory(s *models.Story) *models.Story {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Parts = make([]models.StoryPart, len(s.Parts))
	for i, p := range s.Parts {
		cp.Parts[i] = p
		cp.Parts[i].Actions = append([]models.Action(nil), p.Actions...)
	}
	return &cp
}
