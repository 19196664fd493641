package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/rasedi-pay/internal/repository"
)

// Repository реализует TransactionRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// Create сохраняет новую транзакцию
func (r *Repository) Create(ctx context.Context, tx repository.Transaction) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payment_transactions
		   (local_ref, gateway_ref, amount, state, reason,
		    secret_key_id, private_key, gateways,
		    collect_fee, collect_email, collect_phone, live)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.LocalRef, tx.GatewayRef, tx.Amount, string(tx.State), tx.Reason,
		tx.Provider.SecretKeyID, tx.Provider.PrivateKey, tx.Provider.Gateways,
		tx.Provider.CollectFee, tx.Provider.CollectEmail, tx.Provider.CollectPhone, tx.Provider.Live)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetByLocalRef получает транзакцию по локальному reference
func (r *Repository) GetByLocalRef(ctx context.Context, localRef string) (repository.Transaction, error) {
	return r.get(ctx, `WHERE local_ref = $1`, localRef)
}

// GetByGatewayRef получает транзакцию по reference code шлюза
func (r *Repository) GetByGatewayRef(ctx context.Context, gatewayRef string) (repository.Transaction, error) {
	return r.get(ctx, `WHERE gateway_ref = $1`, gatewayRef)
}

func (r *Repository) get(ctx context.Context, where string, arg string) (repository.Transaction, error) {
	var tx repository.Transaction
	var state string
	var createdAt, updatedAt time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT local_ref, COALESCE(gateway_ref, ''), amount, state, reason,
		        secret_key_id, private_key, gateways,
		        collect_fee, collect_email, collect_phone, live,
		        created_at, updated_at
		 FROM payment_transactions `+where,
		arg).Scan(
		&tx.LocalRef, &tx.GatewayRef, &tx.Amount, &state, &tx.Reason,
		&tx.Provider.SecretKeyID, &tx.Provider.PrivateKey, &tx.Provider.Gateways,
		&tx.Provider.CollectFee, &tx.Provider.CollectEmail, &tx.Provider.CollectPhone, &tx.Provider.Live,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Transaction{}, repository.ErrNotFound
		}
		return repository.Transaction{}, err
	}

	tx.State = repository.State(state)
	tx.CreatedAt = createdAt.Unix()
	tx.UpdatedAt = updatedAt.Unix()
	return tx, nil
}

// SetGatewayRef привязывает reference code шлюза к транзакции.
// Строка блокируется через SELECT ... FOR UPDATE, чтобы проверка
// "reference ещё не назначен" и запись были атомарны.
func (r *Repository) SetGatewayRef(ctx context.Context, localRef, gatewayRef string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(gateway_ref, '') FROM payment_transactions WHERE local_ref = $1 FOR UPDATE`,
		localRef).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}

	if current != "" {
		if current == gatewayRef {
			return tx.Commit(ctx)
		}
		return repository.ErrReferenceAlreadySet
	}

	_, err = tx.Exec(ctx,
		`UPDATE payment_transactions SET gateway_ref = $2, updated_at = now() WHERE local_ref = $1`,
		localRef, gatewayRef)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetState переводит транзакцию в новое состояние.
// Терминальные состояния не перезаписываются и на уровне хранилища:
// проверка текущего состояния и запись выполняются под row lock.
func (r *Repository) SetState(ctx context.Context, localRef string, state repository.State, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT state FROM payment_transactions WHERE local_ref = $1 FOR UPDATE`,
		localRef).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}

	if repository.State(current).Terminal() {
		return repository.ErrTerminalState
	}

	_, err = tx.Exec(ctx,
		`UPDATE payment_transactions SET state = $2, reason = $3, updated_at = now() WHERE local_ref = $1`,
		localRef, string(state), reason)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListNonTerminal возвращает до limit нетерминальных транзакций, старые первыми
func (r *Repository) ListNonTerminal(ctx context.Context, limit int) ([]repository.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT local_ref, COALESCE(gateway_ref, ''), amount, state, reason,
		        secret_key_id, private_key, gateways,
		        collect_fee, collect_email, collect_phone, live,
		        created_at, updated_at
		 FROM payment_transactions
		 WHERE state IN ('created', 'pending')
		 ORDER BY created_at, local_ref
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]repository.Transaction, 0)
	for rows.Next() {
		var tx repository.Transaction
		var state string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(
			&tx.LocalRef, &tx.GatewayRef, &tx.Amount, &state, &tx.Reason,
			&tx.Provider.SecretKeyID, &tx.Provider.PrivateKey, &tx.Provider.Gateways,
			&tx.Provider.CollectFee, &tx.Provider.CollectEmail, &tx.Provider.CollectPhone, &tx.Provider.Live,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}
		tx.State = repository.State(state)
		tx.CreatedAt = createdAt.Unix()
		tx.UpdatedAt = updatedAt.Unix()
		out = append(out, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isUniqueViolation проверяет код ошибки unique_violation (23505)
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
