package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrContentPolicy = errors.New("content policy violation")
	ErrNoPrompt      = errors.New("no image prompt")
	ErrTaskFailed    = errors.New("task failed")
)
