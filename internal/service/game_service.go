package service

import (
	"context"
	"strings"
	"sync"

	"improv-client/internal/capture"
	"improv-client/internal/countdown"
	"improv-client/internal/keypoints"
	"improv-client/internal/models"
	"improv-client/internal/narrative"
	"improv-client/internal/session"
	"improv-client/internal/story"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GameService определяет бизнес-логику игрового клиента: оркестрацию трех режимов,
// загрузку импровизаций и производные данные. Рендеринг и озвучка живут выше.
type GameService interface {
	// Сессия
	NewSession(ctx context.Context) (string, error)
	ResetSession(ctx context.Context) error

	// Приключение
	BootstrapImprov(ctx context.Context, payload capture.UploadPayload, hints models.Hints) error
	StartAdventure(ctx context.Context) (*models.Story, error)
	EnsureActions(ctx context.Context, mode models.Mode) ([]models.Action, error)
	ChooseAction(ctx context.Context, actionID uuid.UUID) (requiresCapture bool, err error)
	UploadStoryImprov(ctx context.Context, payload capture.UploadPayload, hints models.Hints, end bool) (*models.StoryPart, error)
	AttachImage(ctx context.Context, partIndex int) error

	// Практика концовок
	StartEndingsPractice(ctx context.Context) error
	SubmitEndingImprov(ctx context.Context, payload capture.UploadPayload, hints models.Hints) (*models.StoryPart, error)
	ResolveEndingAction(ctx context.Context, actionID uuid.UUID) (requiresCapture bool, err error)

	// Практика "три вещи"
	StartThreeThings(ctx context.Context) error
	SubmitThreeThingsAnswer(answer string) error
	StopThreeThings()

	// Вспомогательные
	FetchHints(ctx context.Context, ending bool) (map[string][]string, error)
	TranslatedKeyPoints(ctx context.Context) (keypoints.Projected, error)
	TranslateText(ctx context.Context, text string) (string, error)
}

// Config — параметры оркестрации, не зависящие от пользовательских настроек.
type Config struct {
	SourceLanguage string
	TargetLanguage string
	Countdown      countdown.Config
}

// Compile-time check to ensure implementation satisfies the interface.
var _ GameService = (*gameServiceImpl)(nil)

type gameServiceImpl struct {
	cfg     Config
	manager *session.Manager
	client  narrative.Client
	logger  *zap.Logger

	// Состояние режима "три вещи": партия вопросов и курсор по ней.
	threeMu   sync.Mutex
	questions []models.StoryPart
	cursor    int
	rounds    *countdown.Controller
}

// NewGameService создает сервис. Контроллер отсчета привязывается к колбекам
// продвижения раунда и дозапроса партии.
func NewGameService(cfg Config, manager *session.Manager, client narrative.Client, logger *zap.Logger) GameService {
	s := &gameServiceImpl{
		cfg:     cfg,
		manager: manager,
		client:  client,
		logger:  logger.Named("GameService"),
	}
	s.rounds = countdown.New(cfg.Countdown, s.advanceRound, s.refetchRounds, logger)
	return s
}

// --- Сессия ---

// NewSession запрашивает серверную сессию и инициализирует локальную идентичность.
func (s *gameServiceImpl) NewSession(ctx context.Context) (string, error) {
	id, err := s.client.InitSession(ctx)
	if err != nil {
		return "", err
	}
	s.manager.InitSession(id)
	s.manager.AddLog("session_init", map[string]string{"id": id})
	return id, nil
}

// ResetSession отменяет висящие запросы и сбрасывает все режимы разом.
func (s *gameServiceImpl) ResetSession(ctx context.Context) error {
	s.client.Cancel("")
	s.rounds.Stop()
	s.threeMu.Lock()
	s.questions = nil
	s.cursor = 0
	s.threeMu.Unlock()
	return s.manager.ResetAll(ctx)
}

// --- Приключение ---

// BootstrapImprov отправляет стартовую импровизацию: ответом приходят завязка
// и персонаж, история еще не начинается.
func (s *gameServiceImpl) BootstrapImprov(ctx context.Context, payload capture.UploadPayload, hints models.Hints) error {
	boot, err := s.client.BootstrapImprov(ctx, narrative.ImprovUpload{
		AudioBase64: payload.AudioBase64,
		Frames:      payload.Frames,
		Hints:       hints,
	})
	if err != nil {
		return err
	}
	s.manager.SetPremise(boot.Premise)
	s.manager.SetCharacter(boot.Character)
	s.manager.AddLog("bootstrap_improv", boot)
	return nil
}

// StartAdventure запрашивает первую часть и запускает машину приключения.
func (s *gameServiceImpl) StartAdventure(ctx context.Context) (*models.Story, error) {
	character := s.manager.Character()
	if character == nil {
		return nil, ErrNoCharacter
	}
	premise := s.manager.Premise()
	if premise == nil {
		return nil, ErrNoPremise
	}

	generated, err := s.client.InitStory(ctx, *character, *premise, s.manager.Preferences().StoryComplexity)
	if err != nil {
		return nil, err
	}
	if len(generated.Parts) == 0 {
		return nil, models.ErrFormat
	}

	machine := s.manager.Machine(models.ModeAdventure)
	if err := machine.Start(generated.Parts[0]); err != nil {
		return nil, err
	}
	s.manager.AddLog("adventure_start", generated.ID)
	return machine.Story(), nil
}

// EnsureActions догружает действия для последней части, если их нет.
// Для импровизационных и завершенных историй ничего не делает.
func (s *gameServiceImpl) EnsureActions(ctx context.Context, mode models.Mode) ([]models.Action, error) {
	machine := s.manager.Machine(mode)
	if machine.Finished() {
		return nil, nil
	}
	last := machine.LastPart()
	if last == nil {
		return nil, models.ErrNoStory
	}
	if last.Improv || len(last.Actions) > 0 {
		return last.Actions, nil
	}

	actions, err := s.client.FetchActions(ctx, *last, s.manager.Character())
	if err != nil {
		return nil, err
	}
	if err := machine.UpdateActions(actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// ChooseAction разрешает выбор в приключении. Импровизационное действие
// только резолвится: захват открывает вызывающий слой. Обычное действие
// дополнительно продвигает историю следующей частью.
func (s *gameServiceImpl) ChooseAction(ctx context.Context, actionID uuid.UUID) (bool, error) {
	machine := s.manager.Machine(models.ModeAdventure)
	action, err := findAction(machine, actionID)
	if err != nil {
		return false, err
	}
	if action.IsImprov {
		// Резолв случится после успешной загрузки импровизации
		return true, nil
	}
	if err := machine.ChooseAction(action); err != nil {
		return false, err
	}
	s.manager.AddLog("action_chosen", action)

	// Действие "Ending" запрашивает терминальную часть вместо обычного продолжения
	if strings.ToLower(action.Title) == "ending" {
		part, err := s.client.EndStory(ctx, s.storyText(models.ModeAdventure))
		if err != nil {
			return false, err
		}
		if _, err := machine.Append(*part, false); err != nil {
			return false, err
		}
		machine.MarkFinished()
		s.manager.AddLog("adventure_end", part.ID)
		return false, nil
	}

	premise := ""
	if p := s.manager.Premise(); p != nil {
		premise = p.Description
	}
	part, err := s.client.NextPart(ctx, s.storyText(models.ModeAdventure), premise, action, s.manager.Preferences().StoryComplexity)
	if err != nil {
		return false, err
	}
	if _, err := machine.Append(*part, false); err != nil {
		return false, err
	}
	return false, nil
}

// UploadStoryImprov отправляет импровизацию по ходу истории. end=true завершает
// историю: терминальная часть приходит с действиями, машина переводится в Finished.
func (s *gameServiceImpl) UploadStoryImprov(ctx context.Context, payload capture.UploadPayload, hints models.Hints, end bool) (*models.StoryPart, error) {
	machine := s.manager.Machine(models.ModeAdventure)

	premise := ""
	if p := s.manager.Premise(); p != nil {
		premise = p.Description
	}
	upload := narrative.ImprovUpload{
		AudioBase64: payload.AudioBase64,
		Frames:      payload.Frames,
		Hints:       hints,
		Story:       s.storyText(models.ModeAdventure),
		Premise:     premise,
		End:         end,
	}
	if row, ok := s.manager.KeyPoints().LastRow(); ok {
		upload.KeyPoint = []string{
			strings.Join(row.Who, ", "),
			row.Where,
			strings.Join(row.Objects, ", "),
		}
	}

	part, err := s.client.UploadImprov(ctx, upload)
	if err != nil {
		return nil, err
	}

	if _, err := machine.Append(*part, !end); err != nil {
		return nil, err
	}
	// Свободная импровизация вытесняет предложенный выбор предыдущей части
	if err := machine.ChooseAction(nil); err != nil {
		return nil, err
	}
	if end {
		machine.MarkFinished()
	}
	s.manager.AddLog("story_improv", part.ID)
	return machine.LastPart(), nil
}

// AttachImage догружает иллюстрацию части, если картинки включены и ее еще нет.
func (s *gameServiceImpl) AttachImage(ctx context.Context, partIndex int) error {
	if !s.manager.Preferences().IncludeStoryImages {
		return nil
	}
	machine := s.manager.Machine(models.ModeAdventure)
	snapshot := machine.Story()
	if snapshot == nil || partIndex < 0 || partIndex >= len(snapshot.Parts) {
		return models.ErrInvalidState
	}
	part := snapshot.Parts[partIndex]
	if part.ImageURL != "" {
		return nil
	}

	style := ""
	if img := s.manager.Image(); img != nil {
		style = img.Style
	}
	imageURL, err := s.client.FetchImage(ctx, part.ID.String(), part.KeyMoment, style)
	if err != nil {
		return err
	}
	return machine.UpdateImage(partIndex, imageURL)
}

// --- Практика концовок ---

// StartEndingsPractice получает историю-заготовку и запускает машину концовок.
// Первая часть получает синтетическое действие "Improvise" внутри Start.
func (s *gameServiceImpl) StartEndingsPractice(ctx context.Context) error {
	generated, err := s.client.StoryToEnd(ctx)
	if err != nil {
		return err
	}
	if len(generated.Parts) == 0 {
		return models.ErrFormat
	}
	// Вход в практику всегда начинает с чистого листа
	machine := s.manager.Machine(models.ModeEndings)
	machine.Reset()
	if err := machine.Start(generated.Parts[0]); err != nil {
		return err
	}
	s.manager.AddLog("endings_start", generated.ID)
	return nil
}

// SubmitEndingImprov отправляет попытку концовки. Ответная часть получает тройку
// продолжений Next / Try again / Finish.
func (s *gameServiceImpl) SubmitEndingImprov(ctx context.Context, payload capture.UploadPayload, hints models.Hints) (*models.StoryPart, error) {
	machine := s.manager.Machine(models.ModeEndings)

	part, err := s.client.UploadImprov(ctx, narrative.ImprovUpload{
		AudioBase64: payload.AudioBase64,
		Frames:      payload.Frames,
		Hints:       hints,
		Story:       s.storyText(models.ModeEndings),
		End:         true,
		Exercise:    true,
	})
	if err != nil {
		return nil, err
	}

	if _, err := machine.Append(*part, false); err != nil {
		return nil, err
	}
	if err := machine.UpdateActions(story.EndingContinuations()); err != nil {
		return nil, err
	}
	s.manager.AddLog("ending_improv", part.ID)
	return machine.LastPart(), nil
}

// ResolveEndingAction обрабатывает выбор из тройки продолжений.
// Next — новая заготовка с импровизационным действием; Try again — повтор
// предпоследнего приглашения; Finish — завершение практики.
func (s *gameServiceImpl) ResolveEndingAction(ctx context.Context, actionID uuid.UUID) (bool, error) {
	machine := s.manager.Machine(models.ModeEndings)
	action, err := findAction(machine, actionID)
	if err != nil {
		return false, err
	}
	if action.IsImprov {
		return true, nil
	}
	if err := machine.ChooseAction(action); err != nil {
		return false, err
	}

	switch strings.ToLower(action.Title) {
	case "next":
		generated, err := s.client.StoryToEnd(ctx)
		if err != nil {
			return false, err
		}
		if len(generated.Parts) == 0 {
			return false, models.ErrFormat
		}
		next := generated.Parts[0]
		next.Actions = []models.Action{story.ImproviseAction()}
		if _, err := machine.Append(next, false); err != nil {
			return false, err
		}
	case "try again":
		if err := machine.TryAgain(); err != nil {
			return false, err
		}
	case "finish":
		machine.MarkFinished()
		machine.Reset()
	}
	return false, nil
}

// --- Практика "три вещи" ---

// StartThreeThings загружает партию раундов, запускает машину и отсчет первого раунда.
// Повторный вход в режим начинает заново: таймеры сняты, счет партии с нуля.
func (s *gameServiceImpl) StartThreeThings(ctx context.Context) error {
	s.rounds.Stop()

	generated, err := s.client.GenerateQuestions(ctx, s.cfg.Countdown.MaxRounds)
	if err != nil {
		return err
	}
	if len(generated.Parts) == 0 {
		return models.ErrFormat
	}

	machine := s.manager.Machine(models.ModeThreeThings)
	machine.Reset()
	if err := machine.Start(generated.Parts[0]); err != nil {
		return err
	}

	s.threeMu.Lock()
	s.questions = generated.Parts
	s.cursor = 1
	s.threeMu.Unlock()

	s.rounds.StartRound()
	s.manager.AddLog("3things_start", generated.ID)
	return nil
}

// SubmitThreeThingsAnswer проверяет ответ (ровно три элемента через запятую)
// и продвигает раунд досрочно. Неверный формат раунд не продвигает.
func (s *gameServiceImpl) SubmitThreeThingsAnswer(answer string) error {
	s.threeMu.Lock()
	loaded := len(s.questions) > 0
	s.threeMu.Unlock()
	if !loaded {
		return ErrNoQuestions
	}
	if err := ValidateThreeThings(answer); err != nil {
		return err
	}
	s.manager.AddLog("3things_answer", answer)
	s.rounds.Submit()
	return nil
}

// StopThreeThings снимает таймеры при выходе из режима.
func (s *gameServiceImpl) StopThreeThings() {
	s.rounds.Stop()
}

// advanceRound — колбек контроллера: добавляет следующий вопрос партии.
func (s *gameServiceImpl) advanceRound(round int) {
	s.threeMu.Lock()
	if s.cursor >= len(s.questions) {
		s.threeMu.Unlock()
		s.refetchRounds()
		return
	}
	next := s.questions[s.cursor]
	s.cursor++
	s.threeMu.Unlock()

	machine := s.manager.Machine(models.ModeThreeThings)
	if _, err := machine.Append(next, false); err != nil {
		s.logger.Warn("Раунд не добавлен", zap.Int("round", round), zap.Error(err))
		return
	}
	s.rounds.StartRound()
}

// refetchRounds — колбек исчерпания партии: новая порция вопросов вместо
// локального продвижения.
func (s *gameServiceImpl) refetchRounds() {
	ctx := context.Background()
	generated, err := s.client.GenerateQuestions(ctx, s.cfg.Countdown.MaxRounds)
	if err != nil {
		s.logger.Error("Дозапрос партии раундов не удался", zap.Error(err))
		return
	}
	if len(generated.Parts) == 0 {
		return
	}

	machine := s.manager.Machine(models.ModeThreeThings)
	if _, err := machine.Append(generated.Parts[0], false); err != nil {
		s.logger.Warn("Первый раунд новой партии не добавлен", zap.Error(err))
		return
	}

	s.threeMu.Lock()
	s.questions = generated.Parts
	s.cursor = 1
	s.threeMu.Unlock()

	s.rounds.StartRound()
}

// ValidateThreeThings требует ровно три непустых элемента через запятую.
func ValidateThreeThings(answer string) error {
	parts := strings.Split(answer, ",")
	if len(parts) != 3 {
		return ErrAnswerFormat
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return ErrAnswerFormat
		}
	}
	return nil
}

// --- Вспомогательные ---

// FetchHints запрашивает категории подсказок на языке пользователя.
func (s *gameServiceImpl) FetchHints(ctx context.Context, ending bool) (map[string][]string, error) {
	prefs := s.manager.Preferences()
	return s.client.FetchHints(ctx, ending, prefs.Language, prefs.StoryComplexity)
}

// TranslatedKeyPoints переводит проекцию таблицы и вливает результат обратно.
// Ошибка формата фатальна только для этой попытки: таблица хранит последние
// хорошие значения.
func (s *gameServiceImpl) TranslatedKeyPoints(ctx context.Context) (keypoints.Projected, error) {
	table := s.manager.KeyPoints()
	projected := table.Project()
	if len(projected.Body) == 0 {
		return projected, nil
	}

	translated, err := s.client.TranslateKeyPoints(ctx, projected, s.cfg.SourceLanguage, s.cfg.TargetLanguage)
	if err != nil {
		return table.View(), err
	}
	if err := table.Merge(translated); err != nil {
		return table.View(), err
	}
	return table.View(), nil
}

// TranslateText переводит текст части на язык пользователя.
func (s *gameServiceImpl) TranslateText(ctx context.Context, text string) (string, error) {
	return s.client.Translate(ctx, text, s.cfg.SourceLanguage, s.cfg.TargetLanguage)
}

func (s *gameServiceImpl) storyText(mode models.Mode) string {
	return strings.Join(s.manager.Machine(mode).Text(), " ")
}

// findAction ищет действие по ID в последней части и проверяет его активность.
func findAction(machine *story.Machine, actionID uuid.UUID) (*models.Action, error) {
	last := machine.LastPart()
	if last == nil {
		return nil, models.ErrNoStory
	}
	for i := range last.Actions {
		if last.Actions[i].ID == actionID {
			if !last.Actions[i].Active {
				return nil, ErrActionInactive
			}
			return &last.Actions[i], nil
		}
	}
	return nil, ErrActionNotFound
}
