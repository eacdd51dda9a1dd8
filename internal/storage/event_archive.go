package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/maynagashev/gophvault/internal/models"
)

const eventContentType = "application/json"

// EventArchive сохраняет события хранилищ JSON-объектами в FileStorage.
// Архив только пополняется; история читается из журнала.
type EventArchive struct {
	files FileStorage
}

// NewEventArchive создает архив поверх объектного хранилища.
func NewEventArchive(files FileStorage) *EventArchive {
	return &EventArchive{files: files}
}

// EventKey возвращает ключ объекта для события: events/<vault-id>/<revision>-<kind>.json.
// Ревизия дополняется нулями до 20 знаков, поэтому лексикографический порядок ключей
// совпадает с порядком фиксаций.
func EventKey(event models.VaultEvent) string {
	return fmt.Sprintf("events/%s/%020d-%s.json", event.VaultID, event.Revision, event.Kind)
}

// Publish реализует services.EventPublisher.
func (a *EventArchive) Publish(ctx context.Context, event models.VaultEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка кодирования события: %w", err)
	}
	if err = a.files.UploadFile(ctx, EventKey(event), bytes.NewReader(body), int64(len(body)), eventContentType); err != nil {
		return fmt.Errorf("ошибка архивации события %s: %w", event.Kind, err)
	}
	return nil
}
