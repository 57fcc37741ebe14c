// Package notify delivers transition events to the log, the transition journal and live subscribers.
package notify

import (
	"context"

	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/metrics"
	"go.uber.org/zap"
)

// Journal appends transition events durably.
type Journal interface {
	Save(event domain.TransitionEvent) error
}

// Publisher pushes events to live subscribers.
type Publisher interface {
	Publish(event domain.TransitionEvent)
}

// Fanout is fire-and-forget: a failing sink is logged and never reported to the caller.
type Fanout struct {
	journal   Journal
	publisher Publisher
	metrics   *metrics.Metrics
	l         *zap.Logger
}

// NewFanout creates a notifier. Any sink may be nil.
func NewFanout(journal Journal, publisher Publisher, m *metrics.Metrics, l *zap.Logger) *Fanout {
	if l == nil {
		l = zap.NewNop()
	}
	return &Fanout{journal: journal, publisher: publisher, metrics: m, l: l}
}

// Notify records the event in every sink.
func (f *Fanout) Notify(_ context.Context, event domain.TransitionEvent) {
	f.l.Info("state transition",
		zap.String("machine", string(event.Machine)),
		zap.String("entity_id", event.EntityID),
		zap.String("actor_id", event.ActorID),
		zap.String("from", event.From),
		zap.String("to", event.To))

	f.metrics.Transition(string(event.Machine), event.From, event.To)

	if f.journal != nil {
		if err := f.journal.Save(event); err != nil {
			f.l.Error("failed to journal transition", zap.String("entity_id", event.EntityID), zap.Error(err))
		}
	}
	if f.publisher != nil {
		f.publisher.Publish(event)
	}
}
