package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/maynagashev/gophvault/internal/models"
)

// MemoryEventRepository хранит журнал событий в памяти процесса.
// События каждого хранилища лежат по возрастанию ревизии независимо от порядка записи.
type MemoryEventRepository struct {
	mu      sync.RWMutex
	seq     int64
	byVault map[models.VaultID][]models.VaultEvent
}

var _ EventRepository = (*MemoryEventRepository)(nil)

// NewMemoryEventRepository создает пустой журнал.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{byVault: make(map[models.VaultID][]models.VaultEvent)}
}

func (r *MemoryEventRepository) AppendEvent(_ context.Context, event *models.VaultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	event.Seq = r.seq

	events := r.byVault[event.VaultID]
	i := sort.Search(len(events), func(i int) bool { return events[i].Revision > event.Revision })
	events = append(events, models.VaultEvent{})
	copy(events[i+1:], events[i:])
	events[i] = *event
	r.byVault[event.VaultID] = events
	return nil
}

func (r *MemoryEventRepository) ListEvents(
	_ context.Context,
	vaultID models.VaultID,
	limit,
	offset int,
) ([]models.VaultEvent, error) {
	limit, offset = normalizePage(limit, offset)

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.byVault[vaultID]
	out := make([]models.VaultEvent, 0, min(limit, len(all)))
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
