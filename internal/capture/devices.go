package capture

import "context"

// DeviceInfo описывает одно видеоустройство, доступное для захвата.
type DeviceInfo struct {
	ID    string `json:"deviceId"`
	Label string `json:"label"`
}

// VideoSource — платформенный примитив видеозахвата. Кодеки и низкоуровневый
// доступ к камере не входят в задачи клиента: он только управляет жизненным циклом.
type VideoSource interface {
	// EnumerateDevices перечисляет доступные видеоустройства.
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
	// CaptureFrame снимает один кадр с устройства и возвращает его в base64.
	CaptureFrame(deviceID string) (string, error)
}

// AudioRecorder — платформенный примитив записи звука.
type AudioRecorder interface {
	Start() error
	// Stop завершает запись и возвращает накопленные аудио-чанки.
	Stop() ([][]byte, error)
}

// MediaRecorder пишет комбинированную аудио+видео дорожку для предпросмотра дубля.
type MediaRecorder interface {
	Start(deviceID string) error
	// Stop финализирует запись в один просматриваемый артефакт.
	Stop() ([]byte, error)
}
