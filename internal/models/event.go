package models

import "time"

// EventKind - тип события жизненного цикла хранилища.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventDeposited EventKind = "deposited"
	EventWithdrawn EventKind = "withdrawn"
	EventClosed    EventKind = "closed"
)

// VaultEvent публикуется после успешного применения операции.
type VaultEvent struct {
	// Seq - порядковый номер в журнале; ноль, пока событие не записано.
	Seq int64 `db:"seq" json:"seq,omitempty"`
	// Revision - ревизия записи, зафиксированная операцией; задает порядок событий хранилища.
	Revision int64     `db:"revision" json:"revision"`
	Kind     EventKind `db:"kind" json:"kind"`
	VaultID  VaultID   `db:"vault_id" json:"vault_id"`
	Owner    Identity  `db:"owner" json:"owner"`
	Amount   Amount    `db:"amount" json:"amount,omitempty"`
	Balance  Amount    `db:"balance" json:"balance"`
	// Residual - баланс, оставшийся в хранилище на момент закрытия.
	Residual Amount    `db:"residual" json:"residual,omitempty"`
	At       time.Time `db:"at" json:"at"`
}
