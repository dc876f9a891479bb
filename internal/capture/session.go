package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"improv-client/internal/models"

	"go.uber.org/zap"
)

// State — состояние сессии захвата.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped" // запись завершена, дубль доступен для просмотра
	StateUploading State = "uploading"
)

// UploadPayload — атомарный результат захвата, уходящий коллаборатору.
type UploadPayload struct {
	AudioBase64 string   `json:"audio"`
	Frames      []string `json:"frames"`
}

// Config задает границы окна захвата.
type Config struct {
	Window        time.Duration // жесткий дедлайн с момента Start
	FrameInterval time.Duration // период съемки кадров
}

// Session оркестрирует выбор устройства, периодическую съемку кадров, запись звука
// и комбинированную запись в пределах жесткого окна. Эфемерна: создается при открытии
// окна захвата, буферы очищаются при закрытии или успешной загрузке.
//
// Дедлайн и ручной Stop могут гоняться друг с другом: Stop идемпотентен,
// остановка без записи — no-op, не ошибка.
type Session struct {
	mu sync.Mutex

	cfg      Config
	video    VideoSource
	audio    AudioRecorder
	recorder MediaRecorder
	logger   *zap.Logger

	state        State
	devices      []DeviceInfo // лениво заполняется при первом успешном захвате
	activeDevice string

	frames      []string
	audioChunks [][]byte
	combined    []byte

	samplerStop chan struct{}
	deadline    *time.Timer
}

// NewSession создает сессию захвата в состоянии Idle.
func NewSession(cfg Config, video VideoSource, audio AudioRecorder, recorder MediaRecorder, logger *zap.Logger) *Session {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 300 * time.Millisecond
	}
	return &Session{
		cfg:      cfg,
		video:    video,
		audio:    audio,
		recorder: recorder,
		state:    StateIdle,
		logger:   logger.Named("CaptureSession"),
	}
}

// State возвращает текущее состояние.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capturing истинно, пока идет запись.
func (s *Session) Capturing() bool { return s.State() == StateRecording }

// Frames возвращает копию снятых кадров.
func (s *Session) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

// CombinedRecording возвращает комбинированный артефакт последнего дубля (nil, если его нет).
func (s *Session) CombinedRecording() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combined
}

// Devices возвращает закешированный список устройств, при необходимости
// выполняя ленивое перечисление. Кеш живет до конца сессии.
func (s *Session) Devices(ctx context.Context) ([]DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDevicesLocked(ctx); err != nil {
		return nil, err
	}
	return append([]DeviceInfo(nil), s.devices...), nil
}

// SelectDevice переключает активное устройство. Уже снятые кадры не трогаются.
func (s *Session) SelectDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeDevice = deviceID
}

// ActiveDevice возвращает идентификатор активного устройства.
func (s *Session) ActiveDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeDevice
}

// Start очищает буферы предыдущего дубля и одновременно запускает съемку кадров,
// запись звука и комбинированную запись. Через cfg.Window запись остановится сама,
// даже если пользователь так и не нажмет Stop. Отказ устройства оставляет сессию
// в Idle и возвращается вызывающему без автоматических повторов.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return models.ErrInvalidState
	}

	if err := s.ensureDevicesLocked(ctx); err != nil {
		return err
	}

	if err := s.audio.Start(); err != nil {
		s.logger.Error("Не удалось запустить запись звука", zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrDevice, err)
	}
	if err := s.recorder.Start(s.activeDevice); err != nil {
		// Звук уже пошел — откатываем, сессия остается в Idle
		s.audio.Stop()
		s.logger.Error("Не удалось запустить комбинированную запись", zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrDevice, err)
	}

	s.frames = nil
	s.audioChunks = nil
	s.combined = nil
	s.state = StateRecording

	stop := make(chan struct{})
	s.samplerStop = stop
	go s.sampleFrames(stop)

	s.deadline = time.AfterFunc(s.cfg.Window, func() {
		s.logger.Debug("Дедлайн окна захвата, принудительная остановка")
		s.Stop()
	})

	s.logger.Info("Запись начата",
		zap.String("device", s.activeDevice),
		zap.Duration("window", s.cfg.Window))
	return nil
}

// Stop останавливает съемку кадров и обе записи, финализируя дубль.
// Идемпотентен: повторный или преждевременный вызов — no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	if s.samplerStop != nil {
		close(s.samplerStop)
		s.samplerStop = nil
	}
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	s.mu.Unlock()

	chunks, err := s.audio.Stop()
	if err != nil {
		s.logger.Warn("Остановка записи звука с ошибкой", zap.Error(err))
	}
	combined, err := s.recorder.Stop()
	if err != nil {
		s.logger.Warn("Финализация комбинированной записи с ошибкой", zap.Error(err))
	}

	s.mu.Lock()
	s.audioChunks = chunks
	s.combined = combined
	s.mu.Unlock()

	s.logger.Info("Запись остановлена",
		zap.Int("frames", len(s.Frames())),
		zap.Int("audio_chunks", len(chunks)))
}

// PrepareUpload собирает атомарный payload для загрузки. Без кадров или без звука
// загрузка блокируется локально (ErrEmptyCapture), сетевой вызов не выполняется.
// Кодируется первый аудио-сегмент.
func (s *Session) PrepareUpload() (UploadPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 || len(s.audioChunks) == 0 {
		return UploadPayload{}, models.ErrEmptyCapture
	}
	return UploadPayload{
		AudioBase64: base64.StdEncoding.EncodeToString(s.audioChunks[0]),
		Frames:      append([]string(nil), s.frames...),
	}, nil
}

// BeginUpload переводит сессию из Stopped в Uploading.
func (s *Session) BeginUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return models.ErrInvalidState
	}
	s.state = StateUploading
	return nil
}

// FinishUpload завершает загрузку. Успех очищает буферы и возвращает сессию в Idle;
// неуспех оставляет дубль на руках для ручного повтора.
func (s *Session) FinishUpload(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUploading {
		return
	}
	if success {
		s.clearLocked()
	} else {
		s.state = StateStopped
	}
}

// Close сбрасывает сессию: таймеры сняты, буферы очищены, состояние Idle.
func (s *Session) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.frames = nil
	s.audioChunks = nil
	s.combined = nil
	s.state = StateIdle
}

// sampleFrames снимает по кадру каждый FrameInterval до остановки.
// Устройство читается на каждом тике: переключение влияет только на будущие кадры.
func (s *Session) sampleFrames(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			device := s.activeDevice
			recording := s.state == StateRecording
			s.mu.Unlock()
			if !recording {
				return
			}
			frame, err := s.video.CaptureFrame(device)
			if err != nil {
				s.logger.Warn("Кадр пропущен", zap.Error(err))
				continue
			}
			s.mu.Lock()
			if s.state == StateRecording {
				s.frames = append(s.frames, frame)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) ensureDevicesLocked(ctx context.Context) error {
	if len(s.devices) > 0 {
		return nil
	}
	devices, err := s.video.EnumerateDevices(ctx)
	if err != nil {
		s.logger.Error("Перечисление устройств не удалось", zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrDevice, err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: no video devices", models.ErrDevice)
	}
	s.devices = devices
	if s.activeDevice == "" {
		s.activeDevice = devices[0].ID
	}
	return nil
}
