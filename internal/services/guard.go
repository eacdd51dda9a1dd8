package services

import "github.com/maynagashev/gophvault/internal/models"

// Authorize сообщает, совпадает ли подписант запроса с владельцем записи.
// Чистая функция без побочных эффектов; сравнение выполняется за постоянное время.
func Authorize(vault *models.Vault, signer models.Identity) bool {
	if vault == nil {
		return false
	}
	return vault.Owner.Equal(signer)
}
