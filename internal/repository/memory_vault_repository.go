package repository

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/sha3"

	"github.com/maynagashev/gophvault/internal/models"
)

// MemoryVaultRepository хранит записи в памяти процесса.
//
// Общий мьютекс защищает только состав карты; каждая запись имеет собственный мьютекс,
// поэтому операции над разными ID друг друга не ждут.
// Ревизии выдаются общим счетчиком, пока изменяемая запись захвачена.
type MemoryVaultRepository struct {
	mu       sync.Mutex
	entries  map[models.VaultID]*vaultEntry
	revision atomic.Int64
	now      func() time.Time
}

type vaultEntry struct {
	mu      sync.Mutex
	vault   models.Vault
	removed bool
}

var _ VaultRepository = (*MemoryVaultRepository)(nil)

// NewMemoryVaultRepository создает пустое хранилище в памяти.
func NewMemoryVaultRepository() *MemoryVaultRepository {
	return &MemoryVaultRepository{
		entries: make(map[models.VaultID]*vaultEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryVaultRepository) lookup(id models.VaultID) (*vaultEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// GetVault возвращает копию записи.
func (r *MemoryVaultRepository) GetVault(_ context.Context, id models.VaultID) (*models.Vault, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, ErrVaultNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, ErrVaultNotFound
	}
	v := e.vault
	return &v, nil
}

// InsertVault добавляет запись, если ID свободен.
func (r *MemoryVaultRepository) InsertVault(_ context.Context, vault *models.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[vault.ID]; ok {
		return ErrVaultExists
	}
	now := r.now()
	vault.CreatedAt = now
	vault.UpdatedAt = now
	vault.Revision = r.revision.Add(1)
	r.entries[vault.ID] = &vaultEntry{vault: *vault}
	log.Debug().Str("component", componentVaultRepo).Stringer("vault_id", vault.ID).Msg("Хранилище создано (memory)")
	return nil
}

// UpdateVault применяет fn к копии записи и сохраняет результат, если fn не вернула ошибку.
// Владелец всегда сохраняется прежним.
func (r *MemoryVaultRepository) UpdateVault(
	_ context.Context,
	id models.VaultID,
	fn func(*models.Vault) error,
) (*models.Vault, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, ErrVaultNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, ErrVaultNotFound
	}

	next := e.vault
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.ID = e.vault.ID
	next.Owner = e.vault.Owner
	next.CreatedAt = e.vault.CreatedAt
	next.UpdatedAt = r.now()
	next.Revision = r.revision.Add(1)
	e.vault = next

	out := next
	return &out, nil
}

// DeleteVault удаляет запись после успешной проверки fn.
// Запись остается в карте до конца удаления, поэтому повторное создание того же ID
// получит ревизию больше ревизии удаления.
func (r *MemoryVaultRepository) DeleteVault(
	_ context.Context,
	id models.VaultID,
	fn func(*models.Vault) error,
) (*models.Vault, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, ErrVaultNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, ErrVaultNotFound
	}

	last := e.vault
	if fn != nil {
		if err := fn(&last); err != nil {
			return nil, err
		}
	}
	e.vault.Revision = r.revision.Add(1)
	e.removed = true

	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	log.Debug().Str("component", componentVaultRepo).Stringer("vault_id", id).Msg("Хранилище удалено (memory)")
	out := e.vault
	return &out, nil
}

// Snapshot возвращает копии всех живых записей, упорядоченные по ID.
func (r *MemoryVaultRepository) Snapshot() []models.Vault {
	r.mu.Lock()
	entries := make([]*vaultEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]models.Vault, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.vault)
		}
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b models.Vault) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Digest - sha3-256 от упорядоченных пар (ID, бинарная запись).
// Совпадение дайджестов означает побайтно одинаковое состояние ID, владельцев и балансов.
func (r *MemoryVaultRepository) Digest() [32]byte {
	h := sha3.New256()
	for _, v := range r.Snapshot() {
		payload, _ := v.MarshalBinary() //nolint:errcheck // кодирование фиксированной длины не возвращает ошибок
		_, _ = h.Write(v.ID[:])
		_, _ = h.Write(payload)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
