package domain

import "errors"

var (
	ErrUnknownCommand        = errors.New("unknown command")
	ErrInvalidRole           = errors.New("invalid access role")
	ErrConflictingLevels     = errors.New("conflicting access levels")
	ErrInvalidModerationMode = errors.New("invalid moderation mode")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
)
