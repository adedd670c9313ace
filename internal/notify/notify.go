package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Notification is a user-visible message: connection changes, server errors, game events.
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func New(level Level, title, message string) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		At:      time.Now(),
	}
}

type Notifier interface {
	Notify(n Notification)
}

type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log.Named("notify")}
}

func (l *Logger) Notify(n Notification) {
	fields := []zap.Field{zap.String("title", n.Title), zap.String("message", n.Message)}
	switch n.Level {
	case LevelError:
		l.log.Error("notification", fields...)
	case LevelWarn:
		l.log.Warn("notification", fields...)
	default:
		l.log.Info("notification", fields...)
	}
}

// Recorder keeps the most recent notifications for the control API.
type Recorder struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
}

// Recent returns the recorded notifications, newest first.
func (r *Recorder) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	for i, n := range r.items {
		out[len(r.items)-1-i] = n
	}
	return out
}

type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, dst := range m {
		dst.Notify(n)
	}
}

// Func adapts a plain function, mostly for tests.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }
