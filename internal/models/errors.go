package models

import "errors"

// Application-wide standard errors
var (
	// State machine errors
	ErrInvalidState = errors.New("operation not allowed in current state") // Ошибка программирования вызывающего слоя
	ErrNoStory      = errors.New("no story exists for this mode")
	ErrStoryExists  = errors.New("story already exists for this mode, reset first")

	// Collaborator / format errors
	ErrFormat = errors.New("collaborator response does not match any tolerated shape")
	ErrRemote = errors.New("narrative service call failed")

	// Capture errors
	ErrDevice       = errors.New("camera or microphone unavailable or access denied")
	ErrEmptyCapture = errors.New("no frames or no audio captured")

	// Storage errors
	ErrNotFound = errors.New("record not found")
)
