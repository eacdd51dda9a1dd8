package services

import (
	"context"
	"fmt"

	"github.com/maynagashev/gophvault/internal/models"
	"github.com/maynagashev/gophvault/internal/repository"
)

// Границы страницы истории.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryService отдает журнал событий хранилища.
// История доступна и после закрытия хранилища. Неположительный limit заменяется
// на DefaultHistoryLimit, limit выше MaxHistoryLimit урезается, отрицательный offset
// считается нулем.
type HistoryService interface {
	ListEvents(ctx context.Context, vaultID models.VaultID, limit, offset int) ([]models.VaultEvent, error)
}

type historyService struct {
	events repository.EventRepository
}

// NewHistoryService создает сервис истории поверх журнала.
func NewHistoryService(events repository.EventRepository) HistoryService {
	return &historyService{events: events}
}

func (s *historyService) ListEvents(
	ctx context.Context,
	vaultID models.VaultID,
	limit,
	offset int,
) ([]models.VaultEvent, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	offset = max(offset, 0)

	events, err := s.events.ListEvents(ctx, vaultID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("внутренняя ошибка при получении истории: %w", err)
	}
	return events, nil
}
