package models

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VaultID - уникальный идентификатор записи хранилища.
type VaultID = uuid.UUID

// VaultRecordSize - размер бинарного представления записи: дискриминатор + владелец + баланс.
const VaultRecordSize = 8 + IdentitySize + 8

// vaultDiscriminator - первые 8 байт sha256("account:Vault"), метка типа записи.
var vaultDiscriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("account:Vault"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

// ErrMalformedRecord возвращается при разборе поврежденного бинарного представления.
var ErrMalformedRecord = errors.New("поврежденная запись хранилища")

// Vault представляет запись хранилища: один владелец и один баланс.
// Владелец задается один раз при создании и больше не меняется.
type Vault struct {
	ID      VaultID  `db:"id" json:"id"`
	Owner   Identity `db:"owner" json:"owner"`
	Balance Amount   `db:"balance" json:"balance"`
	// Revision назначается хранилищем при каждой фиксации изменения записи.
	// Значения растут в порядке фиксаций и не повторяются в пределах хранилища.
	Revision  int64     `db:"revision" json:"revision"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// VaultView - представление хранилища только для чтения.
type VaultView struct {
	ID      VaultID  `json:"id"`
	Owner   Identity `json:"owner"`
	Balance Amount   `json:"balance"`
}

// View возвращает представление записи для чтения.
func (v *Vault) View() VaultView {
	return VaultView{ID: v.ID, Owner: v.Owner, Balance: v.Balance}
}

// MarshalBinary кодирует владельца и баланс в фиксированный формат (little-endian).
// Идентификатор является ключом записи и в полезную нагрузку не входит.
func (v *Vault) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, VaultRecordSize)
	buf = append(buf, vaultDiscriminator[:]...)
	buf = append(buf, v.Owner[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Balance))
	return buf, nil
}

// UnmarshalBinary разбирает результат MarshalBinary.
func (v *Vault) UnmarshalBinary(data []byte) error {
	if len(data) != VaultRecordSize {
		return fmt.Errorf("%w: длина %d, ожидается %d", ErrMalformedRecord, len(data), VaultRecordSize)
	}
	if [8]byte(data[:8]) != vaultDiscriminator {
		return fmt.Errorf("%w: неизвестный дискриминатор", ErrMalformedRecord)
	}
	copy(v.Owner[:], data[8:8+IdentitySize])
	v.Balance = Amount(binary.LittleEndian.Uint64(data[8+IdentitySize:]))
	return nil
}
