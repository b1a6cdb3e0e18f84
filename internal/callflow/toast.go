package callflow

import (
	"log/slog"
	"sync"
)

type ToastKind string

const (
	ToastInfo  ToastKind = "info"
	ToastError ToastKind = "error"
)

// Toaster shows short user-facing notices.
type Toaster interface {
	Toast(kind ToastKind, message string)
}

// LogToaster writes toasts to a structured logger. Used by headless clients.
type LogToaster struct {
	Logger *slog.Logger
}

func (t LogToaster) Toast(kind ToastKind, message string) {
	logger := loggerOrDefault(t.Logger)
	if kind == ToastError {
		logger.Warn(message, "toast", kind)
		return
	}
	logger.Info(message, "toast", kind)
}

type Toast struct {
	Kind    ToastKind
	Message string
}

// ToastRecorder keeps every toast in memory.
type ToastRecorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *ToastRecorder) Toast(kind ToastKind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, Toast{Kind: kind, Message: message})
}

func (r *ToastRecorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}
