package service

import (
	"context"

	"github.com/shestoi/rasedi-pay/internal/rasedi"
	"github.com/shestoi/rasedi-pay/internal/repository"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=GatewayClient --dir=. --output=./mocks --outpkg=mocks

// GatewayClient определяет интерфейс для вызовов Rasedi API
// Service зависит от интерфейса, а не от конкретного HTTP клиента
type GatewayClient interface {
	// CreatePayment создаёт платёж и возвращает redirect URL + reference code
	CreatePayment(ctx context.Context, in rasedi.CreateRequest) (rasedi.CreateResult, error)
	// FetchStatus запрашивает текущий статус платежа по reference code
	FetchStatus(ctx context.Context, referenceCode string) (rasedi.StatusPayload, error)
	// Cancel отменяет платёж по reference code
	Cancel(ctx context.Context, referenceCode string) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=EventPublisher --dir=. --output=./mocks --outpkg=mocks

// EventPublisher публикует событие о достижении транзакцией терминального состояния
// Ошибки публикации логируются и никогда не блокируют переход состояния
type EventPublisher interface {
	PublishTerminal(ctx context.Context, event TerminalEvent) error
}

// TerminalEvent - событие первого перехода транзакции в терминальное состояние
type TerminalEvent struct {
	LocalRef   string
	GatewayRef string
	State      repository.State
	Reason     string
}
