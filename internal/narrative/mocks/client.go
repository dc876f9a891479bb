package mocks

import (
	"context"

	"improv-client/internal/keypoints"
	"improv-client/internal/models"
	"improv-client/internal/narrative"

	"github.com/stretchr/testify/mock"
)

// Mock narrative.Client
type Client struct {
	mock.Mock
}

var _ narrative.Client = (*Client)(nil)

func (m *Client) InitSession(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Client) InitStory(ctx context.Context, character models.Character, premise models.Premise, complexity int) (*models.Story, error) {
	args := m.Called(ctx, character, premise, complexity)
	var story *models.Story
	if args.Get(0) != nil {
		story = args.Get(0).(*models.Story)
	}
	return story, args.Error(1)
}

func (m *Client) NextPart(ctx context.Context, storyText string, premise string, action *models.Action, complexity int) (*models.StoryPart, error) {
	args := m.Called(ctx, storyText, premise, action, complexity)
	var part *models.StoryPart
	if args.Get(0) != nil {
		part = args.Get(0).(*models.StoryPart)
	}
	return part, args.Error(1)
}

func (m *Client) EndStory(ctx context.Context, storyText string) (*models.StoryPart, error) {
	args := m.Called(ctx, storyText)
	var part *models.StoryPart
	if args.Get(0) != nil {
		part = args.Get(0).(*models.StoryPart)
	}
	return part, args.Error(1)
}

func (m *Client) StoryToEnd(ctx context.Context) (*models.Story, error) {
	args := m.Called(ctx)
	var story *models.Story
	if args.Get(0) != nil {
		story = args.Get(0).(*models.Story)
	}
	return story, args.Error(1)
}

func (m *Client) GenerateQuestions(ctx context.Context, maxRounds int) (*models.Story, error) {
	args := m.Called(ctx, maxRounds)
	var story *models.Story
	if args.Get(0) != nil {
		story = args.Get(0).(*models.Story)
	}
	return story, args.Error(1)
}

func (m *Client) FetchActions(ctx context.Context, part models.StoryPart, character *models.Character) ([]models.Action, error) {
	args := m.Called(ctx, part, character)
	var actions []models.Action
	if args.Get(0) != nil {
		actions = args.Get(0).([]models.Action)
	}
	return actions, args.Error(1)
}

func (m *Client) FetchImage(ctx context.Context, partKey string, keyMoment string, style string) (string, error) {
	args := m.Called(ctx, partKey, keyMoment, style)
	return args.String(0), args.Error(1)
}

func (m *Client) FetchHints(ctx context.Context, ending bool, language string, complexity int) (map[string][]string, error) {
	args := m.Called(ctx, ending, language, complexity)
	var hints map[string][]string
	if args.Get(0) != nil {
		hints = args.Get(0).(map[string][]string)
	}
	return hints, args.Error(1)
}

func (m *Client) UploadImprov(ctx context.Context, upload narrative.ImprovUpload) (*models.StoryPart, error) {
	args := m.Called(ctx, upload)
	var part *models.StoryPart
	if args.Get(0) != nil {
		part = args.Get(0).(*models.StoryPart)
	}
	return part, args.Error(1)
}

func (m *Client) BootstrapImprov(ctx context.Context, upload narrative.ImprovUpload) (*narrative.Bootstrap, error) {
	args := m.Called(ctx, upload)
	var boot *narrative.Bootstrap
	if args.Get(0) != nil {
		boot = args.Get(0).(*narrative.Bootstrap)
	}
	return boot, args.Error(1)
}

func (m *Client) Translate(ctx context.Context, text string, srcLang string, tgtLang string) (string, error) {
	args := m.Called(ctx, text, srcLang, tgtLang)
	return args.String(0), args.Error(1)
}

func (m *Client) TranslateKeyPoints(ctx context.Context, table keypoints.Projected, srcLang string, tgtLang string) (keypoints.Projected, error) {
	args := m.Called(ctx, table, srcLang, tgtLang)
	var translated keypoints.Projected
	if args.Get(0) != nil {
		translated = args.Get(0).(keypoints.Projected)
	}
	return translated, args.Error(1)
}

func (m *Client) Cancel(keyPrefix string) {
	m.Called(keyPrefix)
}
