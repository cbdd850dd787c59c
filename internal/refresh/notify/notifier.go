package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	refresh "tariffwatch/internal/refresh/domain"
)

// Clock provides time for dedupe decisions.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders transitions and sends them through a channel,
// suppressing repeats of the same content within the dedupe window.
type Notifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	location     *time.Location
	dedupeWindow time.Duration

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithLocation renders times in loc.
func WithLocation(loc *time.Location) Option {
	return func(n *Notifier) {
		if loc != nil {
			n.location = loc
		}
	}
}

// NewNotifier constructs a transition notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("tariff notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		location: time.UTC,
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify renders and sends one transition.
func (n *Notifier) Notify(ctx context.Context, transition refresh.Transition) error {
	if n == nil || n.channel == nil {
		return nil
	}
	content, err := n.template.Render(n.buildTemplateData(transition))
	if err != nil {
		return err
	}
	key := string(transition.Type) + "|" + transition.BlockStart.UTC().Format(time.RFC3339)
	if !n.shouldSend(key, content) {
		return nil
	}
	msg := Message{
		Content:    content,
		TariffCode: transition.TariffCode,
		Event:      string(transition.Type),
		From:       string(transition.From),
		To:         string(transition.To),
		BlockStart: transition.BlockStart,
		BlockEnd:   transition.BlockEnd,
	}
	if err := n.channel.Send(ctx, msg); err != nil {
		return err
	}
	n.markSent(key, content)
	return nil
}

func (n *Notifier) buildTemplateData(t refresh.Transition) TemplateData {
	at := t.At
	if at.IsZero() {
		at = n.clock.Now()
	}
	return TemplateData{
		TariffCode:       t.TariffCode,
		Event:            string(t.Type),
		EventLabel:       eventLabel(t.Type),
		From:             string(t.From),
		To:               string(t.To),
		BlockStart:       t.BlockStart.In(n.location).Format("2006-01-02 15:04"),
		BlockEnd:         t.BlockEnd.In(n.location).Format("15:04"),
		MinutesRemaining: t.MinutesRemaining,
		At:               at.In(n.location).Format(time.RFC3339),
	}
}

func eventLabel(kind refresh.TransitionType) string {
	switch kind {
	case refresh.TransitionPhaseChanged:
		return "Phase Changed"
	case refresh.TransitionNextPhaseChanged:
		return "Next Phase Changed"
	case refresh.TransitionPhaseEndingSoon:
		return "Phase Ending Soon"
	default:
		return string(kind)
	}
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || now.Sub(record.at) >= n.dedupeWindow
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
