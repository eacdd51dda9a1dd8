package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/services"
)

// EventHandler обрабатывает запросы к журналу событий.
type EventHandler struct {
	historyService services.HistoryService
}

// NewEventHandler создает новый экземпляр EventHandler.
func NewEventHandler(hs services.HistoryService) *EventHandler {
	return &EventHandler{historyService: hs}
}

// List обрабатывает GET /api/vaults/{id}/events?limit=&offset=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDFromRequest(w, r)
	if !ok {
		return
	}

	// Некорректные значения заменяются значениями по умолчанию
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > services.MaxHistoryLimit {
		limit = services.DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, err := h.historyService.ListEvents(r.Context(), id, limit, offset)
	if err != nil {
		log.Error().Str("component", "EventHandler:List").Err(err).Stringer("vault_id", id).
			Msg("Ошибка получения истории")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	writeJSON(w, "EventList", http.StatusOK, events)
}
