package service

import "github.com/shestoi/rasedi-pay/internal/repository"

// MapStatus переводит статус из словаря Rasedi в локальное состояние транзакции.
// Сопоставление детерминированное и регистрозависимое ("paid" != "PAID").
// Возвращает состояние и причину (непустую только для StateError).
//
// Неизвестный токен намеренно отображается в терминальную ошибку
// "Unknown Status: {token}", а не игнорируется и не оставляется в pending:
// молча подвисший заказ хуже видимой ошибки, а дрейф контракта шлюза
// должен всплывать явно. Вызывающий код, которому нужна политика
// "no-op на неизвестном", обязан фильтровать токены до вызова.
func MapStatus(token string) (repository.State, string) {
	switch token {
	case "PAID":
		return repository.StateDone, ""
	case "CANCELED":
		return repository.StateCanceled, ""
	case "FAILED":
		return repository.StateError, "Payment Failed"
	case "TIMED_OUT":
		return repository.StateError, "Payment Timed Out"
	case "PENDING":
		return repository.StatePending, ""
	default:
		return repository.StateError, "Unknown Status: " + token
	}
}
