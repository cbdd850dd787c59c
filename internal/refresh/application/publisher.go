package application

import (
	"sync/atomic"

	refresh "tariffwatch/internal/refresh/domain"
)

// Publisher holds the latest snapshot. Readers get a complete snapshot or
// the previous one, never a partial write.
type Publisher struct {
	current  atomic.Pointer[refresh.Snapshot]
	lastGood atomic.Pointer[refresh.Snapshot]
}

// NewPublisher constructs an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish swaps in s. OK snapshots also become the last known good.
func (p *Publisher) Publish(s *refresh.Snapshot) {
	if p == nil || s == nil {
		return
	}
	p.current.Store(s)
	if s.OK() {
		p.lastGood.Store(s)
	}
}

// Latest returns the most recently published snapshot, or nil.
func (p *Publisher) Latest() *refresh.Snapshot {
	if p == nil {
		return nil
	}
	return p.current.Load()
}

// LastGood returns the most recent OK snapshot, or nil.
func (p *Publisher) LastGood() *refresh.Snapshot {
	if p == nil {
		return nil
	}
	return p.lastGood.Load()
}
