package fetch

import (
	"github.com/truehome/estate/pkg/logger"
)

// Notifier shows a one-shot alert to the user.
type Notifier interface {
	Notify(title, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, message string)

// Notify calls fn.
func (fn NotifierFunc) Notify(title, message string) {
	fn(title, message)
}

// LogNotifier reports alerts through a logger.
type LogNotifier struct {
	Log *logger.Logger
}

// Notify logs the alert at error level.
func (n LogNotifier) Notify(title, message string) {
	logger.OrDiscard(n.Log).WithField("alert", title).Error(message)
}
