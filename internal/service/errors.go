package service

import "errors"

var (
	ErrNoCharacter    = errors.New("adventure character is not set")
	ErrNoPremise      = errors.New("adventure premise is not set")
	ErrActionNotFound = errors.New("action not found in current story part")
	ErrActionInactive = errors.New("action is no longer active")
	ErrAnswerFormat   = errors.New("answer must contain exactly three comma-separated items")
	ErrNoQuestions    = errors.New("no questions batch loaded")
)
