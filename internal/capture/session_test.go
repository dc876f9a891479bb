package capture_test

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"improv-client/internal/capture"
	"improv-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVideo struct {
	mu         sync.Mutex
	devices    []capture.DeviceInfo
	enumErr    error
	frameCount int
	lastDevice string
}

func (f *fakeVideo) EnumerateDevices(context.Context) ([]capture.DeviceInfo, error) {
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return f.devices, nil
}

func (f *fakeVideo) CaptureFrame(deviceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameCount++
	f.lastDevice = deviceID
	return "frame-data", nil
}

func (f *fakeVideo) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDevice
}

type fakeAudio struct {
	startErr error
	chunks   [][]byte
	started  bool
}

func (f *fakeAudio) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeAudio) Stop() ([][]byte, error) {
	f.started = false
	return f.chunks, nil
}

type fakeRecorder struct {
	startErr error
	combined []byte
	device   string
}

func (f *fakeRecorder) Start(deviceID string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.device = deviceID
	return nil
}

func (f *fakeRecorder) Stop() ([]byte, error) { return f.combined, nil }

func newFakes() (*fakeVideo, *fakeAudio, *fakeRecorder) {
	video := &fakeVideo{devices: []capture.DeviceInfo{{ID: "cam0", Label: "Front"}, {ID: "cam1", Label: "Rear"}}}
	audio := &fakeAudio{chunks: [][]byte{[]byte("audio-one"), []byte("audio-two")}}
	recorder := &fakeRecorder{combined: []byte("combined")}
	return video, audio, recorder
}

func newSession(t *testing.T, video *fakeVideo, audio *fakeAudio, recorder *fakeRecorder) *capture.Session {
	t.Helper()
	return capture.NewSession(capture.Config{
		Window:        120 * time.Millisecond,
		FrameInterval: 10 * time.Millisecond,
	}, video, audio, recorder, zap.NewNop())
}

func TestStopBeforeStart(t *testing.T) {
	video, audio, recorder := newFakes()
	s := newSession(t, video, audio, recorder)

	// No-op: ни смены состояния, ни паники
	s.Stop()
	assert.Equal(t, capture.StateIdle, s.State())
	assert.Empty(t, s.Frames())
}

func TestRecordingLifecycle(t *testing.T) {
	t.Run("Manual stop finalizes the take", func(t *testing.T) {
		video, audio, recorder := newFakes()
		s := newSession(t, video, audio, recorder)

		require.NoError(t, s.Start(context.Background()))
		assert.True(t, s.Capturing())
		assert.Equal(t, "cam0", s.ActiveDevice())

		time.Sleep(50 * time.Millisecond)
		s.Stop()

		assert.False(t, s.Capturing())
		assert.Equal(t, capture.StateStopped, s.State())
		assert.NotEmpty(t, s.Frames())
		assert.Equal(t, []byte("combined"), s.CombinedRecording())
	})

	t.Run("Deadline forces the stop without a manual call", func(t *testing.T) {
		video, audio, recorder := newFakes()
		s := newSession(t, video, audio, recorder)

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(200 * time.Millisecond) // дольше окна

		assert.False(t, s.Capturing())
		assert.NotEmpty(t, s.Frames())
	})

	t.Run("Repeated stop is a no-op", func(t *testing.T) {
		video, audio, recorder := newFakes()
		s := newSession(t, video, audio, recorder)

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(30 * time.Millisecond)
		s.Stop()
		frames := len(s.Frames())
		s.Stop()
		assert.Equal(t, frames, len(s.Frames()))
		assert.Equal(t, capture.StateStopped, s.State())
	})

	t.Run("Retake clears the previous buffers", func(t *testing.T) {
		video, audio, recorder := newFakes()
		s := newSession(t, video, audio, recorder)

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(30 * time.Millisecond)
		s.Stop()
		require.NotEmpty(t, s.Frames())

		require.NoError(t, s.Start(context.Background()))
		s.Stop()
		// Новый дубль начинается с чистых буферов
		assert.Less(t, len(s.Frames()), 3)
	})
}

func TestDeviceFailures(t *testing.T) {
	t.Run("Enumeration failure leaves the session idle", func(t *testing.T) {
		video, audio, recorder := newFakes()
		video.enumErr = errors.New("permission denied")
		s := newSession(t, video, audio, recorder)

		err := s.Start(context.Background())
		assert.ErrorIs(t, err, models.ErrDevice)
		assert.Equal(t, capture.StateIdle, s.State())
	})

	t.Run("No devices is a device error", func(t *testing.T) {
		video, audio, recorder := newFakes()
		video.devices = nil
		s := newSession(t, video, audio, recorder)
		assert.ErrorIs(t, s.Start(context.Background()), models.ErrDevice)
	})

	t.Run("Audio failure leaves the session idle", func(t *testing.T) {
		video, audio, recorder := newFakes()
		audio.startErr = errors.New("no microphone")
		s := newSession(t, video, audio, recorder)

		assert.ErrorIs(t, s.Start(context.Background()), models.ErrDevice)
		assert.Equal(t, capture.StateIdle, s.State())
	})

	t.Run("Recorder failure rolls audio back", func(t *testing.T) {
		video, audio, recorder := newFakes()
		recorder.startErr = errors.New("recorder busy")
		s := newSession(t, video, audio, recorder)

		assert.ErrorIs(t, s.Start(context.Background()), models.ErrDevice)
		assert.Equal(t, capture.StateIdle, s.State())
		assert.False(t, audio.started)
	})
}

func TestDeviceSelection(t *testing.T) {
	video, audio, recorder := newFakes()
	s := newSession(t, video, audio, recorder)

	devices, err := s.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "cam0", s.ActiveDevice())

	// Переключение не трогает уже снятые кадры
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	before := len(s.Frames())
	s.SelectDevice("cam1")
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, len(s.Frames()), before)
	assert.Equal(t, "cam1", video.last())
}

func TestPrepareUpload(t *testing.T) {
	t.Run("Empty capture blocks the upload locally", func(t *testing.T) {
		video, audio, recorder := newFakes()
		s := newSession(t, video, audio, recorder)

		_, err := s.PrepareUpload()
		assert.ErrorIs(t, err, models.ErrEmptyCapture)
	})

	t.Run("No audio blocks the upload", func(t *testing.T) {
		video, audio, recorder := newFakes()
		audio.chunks = nil
		s := newSession(t, video, audio, recorder)

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(30 * time.Millisecond)
		s.Stop()

		_, err := s.PrepareUpload()
		assert.ErrorIs(t, err, models.ErrEmptyCapture)
	})

	t.Run("Payload carries the first audio chunk and all frames", func(t *testing.T) {
		video, audio, recorder := newFakes()
		s := newSession(t, video, audio, recorder)

		require.NoError(t, s.Start(context.Background()))
		time.Sleep(40 * time.Millisecond)
		s.Stop()

		payload, err := s.PrepareUpload()
		require.NoError(t, err)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("audio-one")), payload.AudioBase64)
		assert.NotEmpty(t, payload.Frames)
	})
}

func TestUploadTransitions(t *testing.T) {
	video, audio, recorder := newFakes()
	s := newSession(t, video, audio, recorder)

	assert.ErrorIs(t, s.BeginUpload(), models.ErrInvalidState)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	require.NoError(t, s.BeginUpload())
	assert.Equal(t, capture.StateUploading, s.State())

	// Неуспех возвращает дубль на руки
	s.FinishUpload(false)
	assert.Equal(t, capture.StateStopped, s.State())
	assert.NotEmpty(t, s.Frames())

	require.NoError(t, s.BeginUpload())
	s.FinishUpload(true)
	assert.Equal(t, capture.StateIdle, s.State())
	assert.Empty(t, s.Frames())
}

func TestClose(t *testing.T) {
	video, audio, recorder := newFakes()
	s := newSession(t, video, audio, recorder)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	s.Close()

	assert.Equal(t, capture.StateIdle, s.State())
	assert.Empty(t, s.Frames())
	assert.Nil(t, s.CombinedRecording())
}
