package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/rasedi-pay/internal/repository"
)

// MemoryRepository реализует TransactionRepository используя in-memory хранилище
// Используется для разработки и тестирования
// В production заменяется на postgres реализацию
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string]repository.Transaction // ключ = localRef
	byGateway    map[string]string                 // gatewayRef -> localRef
}

// NewMemoryRepository создаёт новый in-memory репозиторий
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[string]repository.Transaction),
		byGateway:    make(map[string]string),
	}
}

// Create сохраняет новую транзакцию в памяти
func (r *MemoryRepository) Create(ctx context.Context, tx repository.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.LocalRef]; exists {
		return repository.ErrAlreadyExists
	}

	now := time.Now().Unix()
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	r.transactions[tx.LocalRef] = tx
	if tx.GatewayRef != "" {
		r.byGateway[tx.GatewayRef] = tx.LocalRef
	}
	return nil
}

// GetByLocalRef получает транзакцию по локальному reference
func (r *MemoryRepository) GetByLocalRef(ctx context.Context, localRef string) (repository.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.transactions[localRef]
	if !exists {
		return repository.Transaction{}, repository.ErrNotFound
	}
	return tx, nil
}

// GetByGatewayRef получает транзакцию по reference code шлюза
func (r *MemoryRepository) GetByGatewayRef(ctx context.Context, gatewayRef string) (repository.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	localRef, exists := r.byGateway[gatewayRef]
	if !exists {
		return repository.Transaction{}, repository.ErrNotFound
	}
	return r.transactions[localRef], nil
}

// SetGatewayRef привязывает reference code шлюза к транзакции (ровно один раз)
func (r *MemoryRepository) SetGatewayRef(ctx context.Context, localRef, gatewayRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, exists := r.transactions[localRef]
	if !exists {
		return repository.ErrNotFound
	}

	if tx.GatewayRef != "" {
		// Повторная запись того же значения - no-op, другого - ошибка
		if tx.GatewayRef == gatewayRef {
			return nil
		}
		return repository.ErrReferenceAlreadySet
	}

	tx.GatewayRef = gatewayRef
	tx.UpdatedAt = time.Now().Unix()
	r.transactions[localRef] = tx
	r.byGateway[gatewayRef] = localRef
	return nil
}

// SetState переводит транзакцию в новое состояние
// Терминальные состояния не перезаписываются
func (r *MemoryRepository) SetState(ctx context.Context, localRef string, state repository.State, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, exists := r.transactions[localRef]
	if !exists {
		return repository.ErrNotFound
	}

	if tx.State.Terminal() {
		return repository.ErrTerminalState
	}

	tx.State = state
	tx.Reason = reason
	tx.UpdatedAt = time.Now().Unix()
	r.transactions[localRef] = tx
	return nil
}

// ListNonTerminal возвращает до limit нетерминальных транзакций,
// старые первыми (стабильный порядок для поллера)
func (r *MemoryRepository) ListNonTerminal(ctx context.Context, limit int) ([]repository.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Transaction, 0)
	for _, tx := range r.transactions {
		if !tx.State.Terminal() {
			out = append(out, tx)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].LocalRef < out[j].LocalRef
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
