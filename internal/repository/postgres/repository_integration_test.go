//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций

	"github.com/shestoi/rasedi-pay/internal/repository"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("payments"),
		postgres.WithUsername("payment_user"),
		postgres.WithPassword("payment_password"),
	)
	require.NoError(t, err)
	defer func() {
		err := postgresContainer.Terminate(ctx)
		require.NoError(t, err)
	}()

	// Получаем DSN из контейнера
	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Открываем *sql.DB через pgx stdlib для goose миграций
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// Ждём готовности БД через ping с retry
	var pingErr error
	for i := 0; i < 10; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	// Вычисляем путь к migrations относительно текущего файла
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	// Текущий файл: internal/repository/postgres/repository_integration_test.go
	testDir := filepath.Dir(filename)
	repoDir := filepath.Dir(testDir)     // internal/repository
	internalDir := filepath.Dir(repoDir) // internal
	moduleDir := filepath.Dir(internalDir)
	migrationsDir := filepath.Join(moduleDir, "migrations")

	// Накатываем миграции через goose
	err = goose.UpContext(ctx, db, migrationsDir)
	require.NoError(t, err, "Failed to run migrations")

	// Создаём pgxpool для repository
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)

	t.Run("Create and GetByLocalRef", func(t *testing.T) {
		tx := repository.Transaction{
			LocalRef: "ord-1",
			Amount:   1500,
			State:    repository.StateCreated,
			Provider: repository.ProviderSnapshot{
				SecretKeyID:  "key-id-1",
				PrivateKey:   "private-key-material",
				Gateways:     []string{"CREDIT_CARD", "DEBIT_CARD"},
				CollectFee:   true,
				CollectEmail: true,
				CollectPhone: false,
				Live:         false,
			},
		}

		err := repo.Create(ctx, tx)
		require.NoError(t, err)

		got, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		require.Equal(t, tx.LocalRef, got.LocalRef)
		require.Equal(t, tx.Amount, got.Amount)
		require.Equal(t, repository.StateCreated, got.State)
		require.Empty(t, got.GatewayRef)
		require.Equal(t, tx.Provider.SecretKeyID, got.Provider.SecretKeyID)
		require.Equal(t, tx.Provider.Gateways, got.Provider.Gateways)
		require.False(t, got.Provider.CollectPhone)
		require.NotZero(t, got.CreatedAt)
	})

	t.Run("Create duplicate returns ErrAlreadyExists", func(t *testing.T) {
		err := repo.Create(ctx, repository.Transaction{
			LocalRef: "ord-1",
			Amount:   100,
			State:    repository.StateCreated,
		})
		require.True(t, errors.Is(err, repository.ErrAlreadyExists), "Expected ErrAlreadyExists, got: %v", err)
	})

	t.Run("GetByLocalRef not found", func(t *testing.T) {
		_, err := repo.GetByLocalRef(ctx, "missing")
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
	})

	t.Run("SetGatewayRef binds exactly once", func(t *testing.T) {
		require.NoError(t, repo.SetGatewayRef(ctx, "ord-1", "R1"))

		// Та же привязка - no-op
		require.NoError(t, repo.SetGatewayRef(ctx, "ord-1", "R1"))

		// Другая привязка запрещена
		err := repo.SetGatewayRef(ctx, "ord-1", "R2")
		require.True(t, errors.Is(err, repository.ErrReferenceAlreadySet), "Expected ErrReferenceAlreadySet, got: %v", err)

		got, err := repo.GetByGatewayRef(ctx, "R1")
		require.NoError(t, err)
		require.Equal(t, "ord-1", got.LocalRef)
	})

	t.Run("SetState and terminal protection", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, "ord-1", repository.StatePending, ""))
		require.NoError(t, repo.SetState(ctx, "ord-1", repository.StateDone, ""))

		// Терминальное состояние не перезаписывается
		err := repo.SetState(ctx, "ord-1", repository.StateCanceled, "")
		require.True(t, errors.Is(err, repository.ErrTerminalState), "Expected ErrTerminalState, got: %v", err)

		got, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		require.Equal(t, repository.StateDone, got.State)
	})

	t.Run("ListNonTerminal skips terminal transactions", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, repository.Transaction{
			LocalRef: "ord-2",
			Amount:   200,
			State:    repository.StateCreated,
		}))
		require.NoError(t, repo.Create(ctx, repository.Transaction{
			LocalRef: "ord-3",
			Amount:   300,
			State:    repository.StatePending,
		}))

		out, err := repo.ListNonTerminal(ctx, 10)
		require.NoError(t, err)

		refs := make([]string, 0, len(out))
		for _, tx := range out {
			refs = append(refs, tx.LocalRef)
		}
		require.Contains(t, refs, "ord-2")
		require.Contains(t, refs, "ord-3")
		require.NotContains(t, refs, "ord-1") // терминальная
	})
}
