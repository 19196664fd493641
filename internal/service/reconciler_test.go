package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/rasedi-pay/internal/rasedi"
	"github.com/shestoi/rasedi-pay/internal/repository"
	"github.com/shestoi/rasedi-pay/internal/repository/memory"
	"github.com/shestoi/rasedi-pay/internal/service"
	"github.com/shestoi/rasedi-pay/internal/service/mocks"
)

func testProviderSettings() service.ProviderSettings {
	return service.ProviderSettings{
		SecretKeyID:  "key-id-1",
		PrivateKey:   "private-key-material",
		Gateways:     []string{"CREDIT_CARD"},
		CollectFee:   true,
		CollectEmail: true,
		CollectPhone: true,
		ReturnURL:    "https://shop.example.com/payment/rasedi/return",
		CallbackURL:  "https://shop.example.com/payment/rasedi/webhook",
	}
}

// pendingTransaction кладёт в репозиторий транзакцию в состоянии pending
// с привязанным gateway reference
func pendingTransaction(t *testing.T, repo repository.TransactionRepository, localRef, gatewayRef string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, repository.Transaction{
		LocalRef: localRef,
		Amount:   1500,
		State:    repository.StateCreated,
	}))
	require.NoError(t, repo.SetGatewayRef(ctx, localRef, gatewayRef))
	require.NoError(t, repo.SetState(ctx, localRef, repository.StatePending, ""))
}

func TestReconciliationService_CreateTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("success: transaction created and moved to pending", func(t *testing.T) {
		// Arrange
		repo := memory.NewMemoryRepository()
		gateway := mocks.NewGatewayClient(t)
		gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(in rasedi.CreateRequest) bool {
			return in.Amount == 1500 &&
				in.Title == "Order" &&
				in.Description == "Order ord-1" &&
				len(in.Gateways) == 1 && in.Gateways[0] == "CREDIT_CARD"
		})).Return(rasedi.CreateResult{
			RedirectURL:   "https://pay.rasedi.com/r/R1",
			ReferenceCode: "R1",
		}, nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		// Act
		result, err := svc.CreateTransaction(ctx, service.CreateTransactionInput{
			LocalRef: "ord-1",
			Amount:   1500,
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "R1", result.ReferenceCode)
		assert.Equal(t, "https://pay.rasedi.com/r/R1", result.RedirectURL)

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatePending, tx.State)
		assert.Equal(t, "R1", tx.GatewayRef)
		assert.Equal(t, "key-id-1", tx.Provider.SecretKeyID)
	})

	t.Run("gateway failure leaves transaction in created", func(t *testing.T) {
		// Arrange
		repo := memory.NewMemoryRepository()
		gateway := mocks.NewGatewayClient(t)
		gateway.On("CreatePayment", mock.Anything, mock.Anything).
			Return(rasedi.CreateResult{}, rasedi.ErrUnreachable).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		// Act
		_, err := svc.CreateTransaction(ctx, service.CreateTransactionInput{
			LocalRef: "ord-2",
			Amount:   500,
		})

		// Assert: ошибка всплывает, транзакция остаётся в created без reference
		require.Error(t, err)
		require.ErrorIs(t, err, rasedi.ErrUnreachable)

		tx, err := repo.GetByLocalRef(ctx, "ord-2")
		require.NoError(t, err)
		assert.Equal(t, repository.StateCreated, tx.State)
		assert.Empty(t, tx.GatewayRef)
	})

	t.Run("duplicate local ref rejected before gateway call", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		require.NoError(t, repo.Create(ctx, repository.Transaction{
			LocalRef: "ord-3",
			Amount:   100,
			State:    repository.StateCreated,
		}))

		gateway := mocks.NewGatewayClient(t) // без ожиданий - вызова быть не должно
		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		_, err := svc.CreateTransaction(ctx, service.CreateTransactionInput{
			LocalRef: "ord-3",
			Amount:   100,
		})
		require.ErrorIs(t, err, repository.ErrAlreadyExists)
	})

	t.Run("validation: empty local ref and non-positive amount", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		gateway := mocks.NewGatewayClient(t)
		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		_, err := svc.CreateTransaction(ctx, service.CreateTransactionInput{LocalRef: "", Amount: 100})
		require.Error(t, err)

		_, err = svc.CreateTransaction(ctx, service.CreateTransactionInput{LocalRef: "ord-4", Amount: 0})
		require.Error(t, err)

		_, err = svc.CreateTransaction(ctx, service.CreateTransactionInput{LocalRef: "ord-4", Amount: -5})
		require.Error(t, err)
	})

	t.Run("empty gateways fall back to CREDIT_CARD", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		gateway := mocks.NewGatewayClient(t)
		gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(in rasedi.CreateRequest) bool {
			return len(in.Gateways) == 1 && in.Gateways[0] == "CREDIT_CARD"
		})).Return(rasedi.CreateResult{RedirectURL: "https://pay.rasedi.com/r/R5", ReferenceCode: "R5"}, nil).Once()

		settings := testProviderSettings()
		settings.Gateways = nil
		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, settings)

		_, err := svc.CreateTransaction(ctx, service.CreateTransactionInput{LocalRef: "ord-5", Amount: 100})
		require.NoError(t, err)
	})
}

func TestReconciliationService_ApplyNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("PAID moves pending transaction to done and publishes event", func(t *testing.T) {
		// Arrange
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		events := mocks.NewEventPublisher(t)
		events.On("PublishTerminal", mock.Anything, service.TerminalEvent{
			LocalRef:   "ord-1",
			GatewayRef: "R1",
			State:      repository.StateDone,
		}).Return(nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), events, testProviderSettings())

		// Act
		err := svc.ApplyNotification(ctx, "R1", "PAID")

		// Assert
		require.NoError(t, err)
		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateDone, tx.State)
		assert.Empty(t, tx.Reason)
	})

	t.Run("duplicate notification for terminal transaction is a no-op", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		events := mocks.NewEventPublisher(t)
		// Событие публикуется ровно один раз, дубликат его не повторяет
		events.On("PublishTerminal", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), events, testProviderSettings())

		require.NoError(t, svc.ApplyNotification(ctx, "R1", "PAID"))
		require.NoError(t, svc.ApplyNotification(ctx, "R1", "PAID"))
	})

	t.Run("terminal outcome is never overwritten", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		require.NoError(t, svc.ApplyNotification(ctx, "R1", "PAID"))
		// Поздний CANCELED (например, отставший webhook) не меняет исход
		require.NoError(t, svc.ApplyNotification(ctx, "R1", "CANCELED"))

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateDone, tx.State)
	})

	t.Run("unknown reference returns ErrUnknownReference", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		err := svc.ApplyNotification(ctx, "no-such-ref", "PAID")
		require.ErrorIs(t, err, service.ErrUnknownReference)

		err = svc.ApplyNotification(ctx, "", "PAID")
		require.ErrorIs(t, err, service.ErrUnknownReference)
	})

	t.Run("unknown status token maps to terminal error", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		require.NoError(t, svc.ApplyNotification(ctx, "R1", "WEIRD"))

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateError, tx.State)
		assert.Equal(t, "Unknown Status: WEIRD", tx.Reason)
	})

	t.Run("PENDING notification for pending transaction does not change state", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		require.NoError(t, svc.ApplyNotification(ctx, "R1", "PENDING"))

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatePending, tx.State)
	})

	t.Run("concurrent identical notifications publish exactly once", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		events := mocks.NewEventPublisher(t)
		events.On("PublishTerminal", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), events, testProviderSettings())

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = svc.ApplyNotification(ctx, "R1", "PAID")
			}()
		}
		wg.Wait()

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateDone, tx.State)
	})

	t.Run("publish failure does not block the state transition", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		events := mocks.NewEventPublisher(t)
		events.On("PublishTerminal", mock.Anything, mock.Anything).
			Return(errors.New("kafka is down")).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), events, testProviderSettings())

		require.NoError(t, svc.ApplyNotification(ctx, "R1", "PAID"))

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateDone, tx.State)
	})
}

func TestReconciliationService_ActivePoll(t *testing.T) {
	ctx := context.Background()

	t.Run("poll applies gateway status", func(t *testing.T) {
		// Arrange
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		gateway := mocks.NewGatewayClient(t)
		gateway.On("FetchStatus", mock.Anything, "R1").
			Return(rasedi.StatusPayload{ReferenceCode: "R1", Status: "PAID"}, nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		// Act
		err := svc.ActivePoll(ctx, "ord-1")

		// Assert
		require.NoError(t, err)
		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateDone, tx.State)
	})

	t.Run("transport error is swallowed, state unchanged", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		gateway := mocks.NewGatewayClient(t)
		gateway.On("FetchStatus", mock.Anything, "R1").
			Return(rasedi.StatusPayload{}, rasedi.ErrUnreachable).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		// Неудавшийся poll никогда не переводит транзакцию в error
		require.NoError(t, svc.ActivePoll(ctx, "ord-1"))

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatePending, tx.State)
	})

	t.Run("no gateway reference is a no-op", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		require.NoError(t, repo.Create(ctx, repository.Transaction{
			LocalRef: "ord-1",
			Amount:   100,
			State:    repository.StateCreated,
		}))

		gateway := mocks.NewGatewayClient(t) // FetchStatus не должен вызываться
		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		require.NoError(t, svc.ActivePoll(ctx, "ord-1"))
	})

	t.Run("terminal transaction is a no-op", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")
		require.NoError(t, repo.SetState(ctx, "ord-1", repository.StateDone, ""))

		gateway := mocks.NewGatewayClient(t)
		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		require.NoError(t, svc.ActivePoll(ctx, "ord-1"))
	})

	t.Run("unknown local ref returns not found", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		err := svc.ActivePoll(ctx, "no-such-ref")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("status response without reference falls back to requested one", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		gateway := mocks.NewGatewayClient(t)
		gateway.On("FetchStatus", mock.Anything, "R1").
			Return(rasedi.StatusPayload{Status: "CANCELED"}, nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		require.NoError(t, svc.ActivePoll(ctx, "ord-1"))

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateCanceled, tx.State)
	})
}

func TestReconciliationService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel requests gateway and polls afterwards", func(t *testing.T) {
		// Arrange
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		gateway := mocks.NewGatewayClient(t)
		gateway.On("Cancel", mock.Anything, "R1").Return(nil).Once()
		gateway.On("FetchStatus", mock.Anything, "R1").
			Return(rasedi.StatusPayload{ReferenceCode: "R1", Status: "CANCELED"}, nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		// Act
		err := svc.Cancel(ctx, "ord-1")

		// Assert
		require.NoError(t, err)
		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateCanceled, tx.State)
	})

	t.Run("terminal transaction cannot be canceled", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")
		require.NoError(t, repo.SetState(ctx, "ord-1", repository.StateDone, ""))

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		err := svc.Cancel(ctx, "ord-1")
		require.ErrorIs(t, err, repository.ErrTerminalState)
	})

	t.Run("transaction without gateway reference cannot be canceled", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		require.NoError(t, repo.Create(ctx, repository.Transaction{
			LocalRef: "ord-1",
			Amount:   100,
			State:    repository.StateCreated,
		}))

		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		err := svc.Cancel(ctx, "ord-1")
		require.Error(t, err)
	})

	t.Run("gateway rejection surfaces to caller", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		gateway := mocks.NewGatewayClient(t)
		gateway.On("Cancel", mock.Anything, "R1").Return(rasedi.ErrRejected).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		err := svc.Cancel(ctx, "ord-1")
		require.ErrorIs(t, err, rasedi.ErrRejected)
	})
}

func TestReconciliationService_HandleReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("return triggers poll by gateway reference", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		pendingTransaction(t, repo, "ord-1", "R1")

		gateway := mocks.NewGatewayClient(t)
		gateway.On("FetchStatus", mock.Anything, "R1").
			Return(rasedi.StatusPayload{ReferenceCode: "R1", Status: "PAID"}, nil).Once()

		svc := service.NewReconciliationService(zap.NewNop(), repo, gateway, nil, testProviderSettings())

		svc.HandleReturn(ctx, "R1")

		tx, err := repo.GetByLocalRef(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StateDone, tx.State)
	})

	t.Run("unknown reference and empty reference do not panic", func(t *testing.T) {
		repo := memory.NewMemoryRepository()
		svc := service.NewReconciliationService(zap.NewNop(), repo, mocks.NewGatewayClient(t), nil, testProviderSettings())

		svc.HandleReturn(ctx, "no-such-ref")
		svc.HandleReturn(ctx, "")
	})
}
