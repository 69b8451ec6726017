package intake

import (
	"context"

	"reisekosten/internal/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	Logger *log.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentIntake)
	}
	args := []any{log.FieldFile, n.File}
	switch n.Level {
	case LevelError:
		logger.ErrorContext(ctx, n.Message, args...)
	case LevelWarning:
		logger.WarnContext(ctx, n.Message, args...)
	default:
		logger.InfoContext(ctx, n.Message, args...)
	}
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }
