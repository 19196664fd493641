package maintenance

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournalStore реализует JournalStore поверх таблиц хоста в PostgreSQL
type PostgresJournalStore struct {
	pool *pgxpool.Pool
}

// NewPostgresJournalStore создаёт новый PostgreSQL journal store
func NewPostgresJournalStore(pool *pgxpool.Pool) *PostgresJournalStore {
	return &PostgresJournalStore{
		pool: pool,
	}
}

// ListBankJournals возвращает все журналы типа bank
func (s *PostgresJournalStore) ListBankJournals(ctx context.Context) ([]Journal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM account_journals WHERE type = 'bank' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Journal, 0)
	for rows.Next() {
		var j Journal
		if err := rows.Scan(&j.ID, &j.Name); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// HasMethodLine проверяет наличие method line провайдера у журнала
func (s *PostgresJournalStore) HasMethodLine(ctx context.Context, journalID int64, provider string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM payment_method_lines WHERE journal_id = $1 AND provider = $2
		 )`,
		journalID, provider).Scan(&exists)
	return exists, err
}

// CreateMethodLine создаёт method line провайдера для журнала
// ON CONFLICT DO NOTHING делает создание идемпотентным при гонке
func (s *PostgresJournalStore) CreateMethodLine(ctx context.Context, journalID int64, provider, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_method_lines (journal_id, provider, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (journal_id, provider) DO NOTHING`,
		journalID, provider, name)
	return err
}
