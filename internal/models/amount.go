package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Amount - неотрицательная сумма в минимальных неделимых единицах.
// В PostgreSQL хранится как NUMERIC(20,0), так как беззнакового 64-битного типа там нет.
type Amount uint64

// Scan читает NUMERIC из базы данных.
func (a *Amount) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	case int64:
		if v < 0 {
			return fmt.Errorf("отрицательная сумма в БД: %d", v)
		}
		*a = Amount(v)
		return nil
	default:
		return fmt.Errorf("неподдерживаемый тип суммы %T", src)
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("ошибка разбора суммы %q: %w", raw, err)
	}
	*a = Amount(parsed)
	return nil
}

// Value записывает сумму десятичной строкой.
func (a Amount) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(a), 10), nil
}
