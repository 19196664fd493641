package repository

import (
	"context"
	"errors"
)

// State представляет состояние платёжной транзакции в локальной state machine.
// Переходы монотонны: created -> pending -> {done|canceled|error}.
// Терминальные состояния (done/canceled/error) никогда не перезаписываются.
type State string

const (
	// StateCreated - транзакция создана локально, шлюз ещё не подтвердил создание
	StateCreated State = "created"
	// StatePending - шлюз принял платёж, ждём исхода
	StatePending State = "pending"
	// StateDone - платёж успешно завершён (терминальное)
	StateDone State = "done"
	// StateCanceled - платёж отменён (терминальное)
	StateCanceled State = "canceled"
	// StateError - платёж завершился ошибкой, причина в Reason (терминальное)
	StateError State = "error"
)

// Terminal возвращает true для состояний, из которых переходы запрещены
func (s State) Terminal() bool {
	return s == StateDone || s == StateCanceled || s == StateError
}

// ProviderSnapshot - снимок конфигурации провайдера на момент создания транзакции.
// Нужен, чтобы нотификации по уже созданным транзакциям обрабатывались с теми же
// ключами, с которыми транзакция создавалась.
type ProviderSnapshot struct {
	SecretKeyID  string
	PrivateKey   string
	Gateways     []string
	CollectFee   bool
	CollectEmail bool
	CollectPhone bool
	Live         bool
}

// Transaction представляет доменную модель одной попытки оплаты.
// LocalRef назначается хостом и неизменен; GatewayRef назначается шлюзом
// ровно один раз при успешном create и после этого не переназначается.
type Transaction struct {
	LocalRef   string
	GatewayRef string // пустой до успешного create
	Amount     int64  // в минимальных единицах валюты
	State      State
	Reason     string // причина для StateError
	Provider   ProviderSnapshot
	CreatedAt  int64 // Unix timestamp
	UpdatedAt  int64 // Unix timestamp
}

var (
	// ErrNotFound возвращается, когда транзакция не найдена в хранилище
	ErrNotFound = errors.New("transaction not found")
	// ErrAlreadyExists возвращается при создании транзакции с занятым local ref
	ErrAlreadyExists = errors.New("transaction already exists")
	// ErrReferenceAlreadySet возвращается при попытке переназначить gateway ref
	ErrReferenceAlreadySet = errors.New("gateway reference already set")
	// ErrTerminalState возвращается при попытке изменить состояние терминальной транзакции
	ErrTerminalState = errors.New("transaction is in terminal state")
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=TransactionRepository --dir=. --output=./mocks --outpkg=mocks

// TransactionRepository определяет интерфейс хранилища транзакций.
// Хост владеет хранилищем; ядро выполняет только эти узкие операции
// и никогда не делает открытых запросов.
type TransactionRepository interface {
	// Create сохраняет новую транзакцию
	// Возвращает ErrAlreadyExists, если local ref уже занят
	Create(ctx context.Context, tx Transaction) error

	// GetByLocalRef получает транзакцию по локальному reference
	// Возвращает ErrNotFound, если транзакция не найдена
	GetByLocalRef(ctx context.Context, localRef string) (Transaction, error)

	// GetByGatewayRef получает транзакцию по reference code шлюза
	// Возвращает ErrNotFound, если транзакция не найдена
	GetByGatewayRef(ctx context.Context, gatewayRef string) (Transaction, error)

	// SetGatewayRef привязывает reference code шлюза к транзакции.
	// Reference назначается ровно один раз: повторный вызов с тем же значением - no-op,
	// с другим значением - ErrReferenceAlreadySet.
	SetGatewayRef(ctx context.Context, localRef, gatewayRef string) error

	// SetState переводит транзакцию в новое состояние.
	// Возвращает ErrTerminalState, если текущее состояние терминальное -
	// хранилище тоже не даёт перезаписать терминальный исход.
	SetState(ctx context.Context, localRef string, state State, reason string) error

	// ListNonTerminal возвращает до limit нетерминальных транзакций
	// (для фонового поллера)
	ListNonTerminal(ctx context.Context, limit int) ([]Transaction, error)
}
