package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"improv-client/internal/keypoints"
	"improv-client/internal/models"

	"go.uber.org/zap"
)

// ErrRequestInFlight возвращается, когда запрос с тем же ключом еще не завершился.
// Дубликат не отправляется; вызывающий повторяет вручную после завершения.
var ErrRequestInFlight = errors.New("request with this key is already in flight")

// Client — контракт удаленного нарративного коллаборатора.
// Генерация историй, картинок и перевод живут на сервере; клиент только
// оркеструет вызовы. Автоматических повторов нет: отказ отдается вызывающему.
type Client interface {
	InitSession(ctx context.Context) (string, error)
	InitStory(ctx context.Context, character models.Character, premise models.Premise, complexity int) (*models.Story, error)
	NextPart(ctx context.Context, storyText string, premise string, action *models.Action, complexity int) (*models.StoryPart, error)
	EndStory(ctx context.Context, storyText string) (*models.StoryPart, error)
	StoryToEnd(ctx context.Context) (*models.Story, error)
	GenerateQuestions(ctx context.Context, maxRounds int) (*models.Story, error)
	FetchActions(ctx context.Context, part models.StoryPart, character *models.Character) ([]models.Action, error)
	FetchImage(ctx context.Context, partKey string, keyMoment string, style string) (string, error)
	FetchHints(ctx context.Context, ending bool, language string, complexity int) (map[string][]string, error)
	UploadImprov(ctx context.Context, upload ImprovUpload) (*models.StoryPart, error)
	BootstrapImprov(ctx context.Context, upload ImprovUpload) (*Bootstrap, error)
	Translate(ctx context.Context, text string, srcLang string, tgtLang string) (string, error)
	TranslateKeyPoints(ctx context.Context, table keypoints.Projected, srcLang string, tgtLang string) (keypoints.Projected, error)
	Cancel(keyPrefix string)
}

// Compile-time check to ensure implementation satisfies the interface.
var _ Client = (*HTTPClient)(nil)

// HTTPClient — реализация поверх HTTP API сервиса.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// Запросы с ключом не дублируются, пока висит предыдущий с тем же ключом.
	// Cancel снимает висящие запросы по префиксу ключа при сбросе режима.
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewHTTPClient создает клиент нарративного сервиса.
// Таймаут на сетевые вызовы не накладывается: жесткие дедлайны есть только
// у окна захвата и пораундового отсчета.
func NewHTTPClient(baseURL string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("NarrativeClient"),
		inflight:   make(map[string]context.CancelFunc),
	}
}

// Cancel кооперативно отменяет все висящие запросы, чей ключ начинается с префикса.
func (c *HTTPClient) Cancel(keyPrefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, cancel := range c.inflight {
		if strings.HasPrefix(key, keyPrefix) {
			cancel()
			delete(c.inflight, key)
		}
	}
}

// acquire регистрирует ключ запроса. Второй запрос с тем же ключом отклоняется.
func (c *HTTPClient) acquire(ctx context.Context, key string) (context.Context, func(), error) {
	if key == "" {
		return ctx, func() {}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return nil, nil, fmt.Errorf("%w: %s", ErrRequestInFlight, key)
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.inflight[key] = cancel
	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if stored, ok := c.inflight[key]; ok {
			stored()
			delete(c.inflight, key)
		}
	}
	return reqCtx, release, nil
}

// post выполняет POST с JSON-телом и раскрывает конверт ответа.
func (c *HTTPClient) post(ctx context.Context, key string, path string, body any, out any) error {
	reqCtx, release, err := c.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

// get выполняет GET с параметрами запроса и раскрывает конверт ответа.
func (c *HTTPClient) get(ctx context.Context, key string, path string, params url.Values, out any) error {
	reqCtx, release, err := c.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *HTTPClient) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Запрос к нарративному сервису не удался", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", models.ErrRemote, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s: некорректный конверт: %v", models.ErrRemote, path, err)
	}
	if resp.StatusCode != http.StatusOK || env.Type == "error" {
		c.logger.Warn("Нарративный сервис вернул ошибку",
			zap.String("path", path),
			zap.Int("http_status", resp.StatusCode),
			zap.String("message", env.Message))
		return fmt.Errorf("%w: %s: %s", models.ErrRemote, path, env.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrFormat, path, err)
	}
	return nil
}

// InitSession запрашивает новую серверную сессию и возвращает ее идентификатор.
func (c *HTTPClient) InitSession(ctx context.Context) (string, error) {
	var data struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, "session:init", "/session", nil, &data); err != nil {
		return "", err
	}
	return data.ID, nil
}

// InitStory запрашивает первую часть новой истории приключения.
func (c *HTTPClient) InitStory(ctx context.Context, character models.Character, premise models.Premise, complexity int) (*models.Story, error) {
	body := map[string]any{
		"complexity": complexity,
		"context": map[string]any{
			"desc":      premise.Description,
			"fullname":  character.FullName,
			"backstory": character.Backstory,
		},
	}
	var wire wireStory
	if err := c.post(ctx, "story:init", "/story/init", body, &wire); err != nil {
		return nil, err
	}
	story := wire.toModel()
	return &story, nil
}

// NextPart продвигает историю выбранным действием.
func (c *HTTPClient) NextPart(ctx context.Context, storyText string, premise string, action *models.Action, complexity int) (*models.StoryPart, error) {
	context_ := map[string]any{"story": storyText}
	if premise != "" {
		context_["premise"] = premise
	}
	if action != nil {
		context_["action"] = map[string]any{"title": action.Title, "desc": action.Description}
	}
	body := map[string]any{"complexity": complexity, "context": context_}

	var wire wirePart
	if err := c.post(ctx, "story:part", "/story/part", body, &wire); err != nil {
		return nil, err
	}
	part := wire.toModel()
	return &part, nil
}

// EndStory запрашивает терминальную часть.
func (c *HTTPClient) EndStory(ctx context.Context, storyText string) (*models.StoryPart, error) {
	var wire wirePart
	if err := c.post(ctx, "story:end", "/story/end", map[string]any{"story": storyText}, &wire); err != nil {
		return nil, err
	}
	part := wire.toModel()
	return &part, nil
}

// StoryToEnd возвращает историю-заготовку для практики концовок.
func (c *HTTPClient) StoryToEnd(ctx context.Context) (*models.Story, error) {
	var wire wireStory
	if err := c.post(ctx, "endings:storytoend", "/practice/generate_storytoend", map[string]any{}, &wire); err != nil {
		return nil, err
	}
	story := wire.toModel()
	return &story, nil
}

// GenerateQuestions возвращает партию раундов для режима "три вещи".
func (c *HTTPClient) GenerateQuestions(ctx context.Context, maxRounds int) (*models.Story, error) {
	var wire wireStory
	if err := c.post(ctx, "3things:questions", "/practice/generate_questions", map[string]any{"maxQ": maxRounds}, &wire); err != nil {
		return nil, err
	}
	story := wire.toModel()
	return &story, nil
}

// FetchActions запрашивает следующий набор действий для части.
// Ключ по идентификатору части: повторный запрос той же части не дублируется.
func (c *HTTPClient) FetchActions(ctx context.Context, part models.StoryPart, character *models.Character) ([]models.Action, error) {
	context_ := map[string]any{"part": map[string]any{"id": part.ID.String(), "text": part.Text}}
	if character != nil {
		context_["character"] = character
	}
	var data struct {
		List []wireAction `json:"list"`
	}
	if err := c.post(ctx, "actions:"+part.ID.String(), "/story/actions", map[string]any{"context": context_}, &data); err != nil {
		return nil, err
	}
	actions := make([]models.Action, 0, len(data.List))
	for _, a := range data.List {
		actions = append(actions, a.toModel())
	}
	return actions, nil
}

// FetchImage запрашивает иллюстрацию ключевого момента части.
func (c *HTTPClient) FetchImage(ctx context.Context, partKey string, keyMoment string, style string) (string, error) {
	body := map[string]any{"content": keyMoment, "style": style}
	var data struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.post(ctx, "image:"+partKey, "/story/image", body, &data); err != nil {
		return "", err
	}
	return data.ImageURL, nil
}

// FetchHints запрашивает категории подсказок для импровизации.
func (c *HTTPClient) FetchHints(ctx context.Context, ending bool, language string, complexity int) (map[string][]string, error) {
	path := "/story/hints"
	key := "hints:init"
	if ending {
		path = "/story/end_hints"
		key = "hints:end"
	}
	body := map[string]any{
		"language": language,
		"context":  map[string]any{"complexity": complexity},
	}
	var data map[string][]string
	if err := c.post(ctx, key, path, body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// UploadImprov отправляет захваченную импровизацию и получает следующую часть.
// Endpoint зависит от того, завершает ли импровизация историю.
func (c *HTTPClient) UploadImprov(ctx context.Context, upload ImprovUpload) (*models.StoryPart, error) {
	path := "/story/story_improv_all"
	key := "improv:story"
	if upload.End {
		path = "/story/end_improv_all"
		key = "improv:end"
	}
	var wire wirePart
	if err := c.post(ctx, key, path, upload, &wire); err != nil {
		return nil, err
	}
	part := wire.toModel()
	return &part, nil
}

// BootstrapImprov отправляет стартовую импровизацию: в ответ приходят завязка
// и персонаж, а не часть истории.
func (c *HTTPClient) BootstrapImprov(ctx context.Context, upload ImprovUpload) (*Bootstrap, error) {
	var boot Bootstrap
	if err := c.post(ctx, "improv:bootstrap", "/story/improv_all", upload, &boot); err != nil {
		return nil, err
	}
	return &boot, nil
}

// Translate переводит текст. Совпадающая языковая пара не требует сети.
func (c *HTTPClient) Translate(ctx context.Context, text string, srcLang string, tgtLang string) (string, error) {
	if srcLang == tgtLang {
		return text, nil
	}
	params := url.Values{}
	params.Set("text", text)
	params.Set("src_lang", srcLang)
	params.Set("tgt_lang", tgtLang)
	var data struct {
		Text string `json:"text"`
	}
	if err := c.get(ctx, "translate:text", "/translate", params, &data); err != nil {
		return "", err
	}
	return data.Text, nil
}

// TranslateKeyPoints переводит проекцию таблицы ключевых точек и нормализует
// ответ из обоих допустимых соглашений об именах ключей.
func (c *HTTPClient) TranslateKeyPoints(ctx context.Context, table keypoints.Projected, srcLang string, tgtLang string) (keypoints.Projected, error) {
	if srcLang == tgtLang {
		return table, nil
	}
	encoded, err := json.Marshal(table)
	if err != nil {
		return keypoints.Projected{}, fmt.Errorf("ошибка сериализации таблицы: %w", err)
	}
	params := url.Values{}
	params.Set("keypoints", string(encoded))
	params.Set("src_lang", srcLang)
	params.Set("tgt_lang", tgtLang)

	var data struct {
		Text json.RawMessage `json:"text"`
	}
	if err := c.get(ctx, "keypoints:translate", "/translate_keypoints", params, &data); err != nil {
		return keypoints.Projected{}, err
	}
	return keypoints.Normalize(data.Text)
}
