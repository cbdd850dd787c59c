package notify

import (
	"context"
	"errors"

	refreshapp "tariffwatch/internal/refresh/application"
	refresh "tariffwatch/internal/refresh/domain"
)

// MultiNotifier dispatches transitions to multiple notifiers.
type MultiNotifier struct {
	notifiers []refreshapp.TransitionNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...refreshapp.TransitionNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the transition to all notifiers and joins their errors.
func (m *MultiNotifier) Notify(ctx context.Context, transition refresh.Transition) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, transition); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
