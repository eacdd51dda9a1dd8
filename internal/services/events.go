package services

import (
	"context"
	"errors"

	"github.com/maynagashev/gophvault/internal/models"
	"github.com/maynagashev/gophvault/internal/repository"
)

// EventPublisher получает события после фиксации изменений.
type EventPublisher interface {
	Publish(ctx context.Context, event models.VaultEvent) error
}

// NopPublisher отбрасывает события.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.VaultEvent) error { return nil }

// MultiPublisher рассылает событие всем получателям по очереди.
// Ошибка одного получателя не мешает остальным; ошибки объединяются.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event models.VaultEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JournalPublisher записывает события в журнал.
type JournalPublisher struct {
	events repository.EventRepository
}

// NewJournalPublisher создает получателя поверх журнала событий.
func NewJournalPublisher(events repository.EventRepository) *JournalPublisher {
	return &JournalPublisher{events: events}
}

func (p *JournalPublisher) Publish(ctx context.Context, event models.VaultEvent) error {
	return p.events.AppendEvent(ctx, &event)
}
