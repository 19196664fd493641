package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/rasedi-pay/internal/repository"
)

// Poller периодически опрашивает шлюз по нетерминальным транзакциям.
// Это компенсирующий контроль для ненадёжной доставки webhook: даже если
// push потерялся, транзакция сойдётся к терминальному состоянию через poll.
// Дедупликация polls по одной транзакции выполняется внутри ActivePoll.
type Poller struct {
	logger    *zap.Logger
	service   *ReconciliationService
	repo      repository.TransactionRepository
	interval  time.Duration
	batchSize int
}

// NewPoller создаёт новый Poller
func NewPoller(
	logger *zap.Logger,
	service *ReconciliationService,
	repo repository.TransactionRepository,
	interval time.Duration,
	batchSize int,
) *Poller {
	return &Poller{
		logger:    logger,
		service:   service,
		repo:      repo,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start запускает poller и блокируется до отмены контекста
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("starting status poller",
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("status poller context cancelled, stopping")
			return nil
		case <-ticker.C:
			if err := p.PollBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error("failed to poll batch", zap.Error(err))
			}
		}
	}
}

// PollBatch опрашивает статус для батча нетерминальных транзакций
func (p *Poller) PollBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	transactions, err := p.repo.ListNonTerminal(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list non-terminal transactions: %w", err)
	}

	if len(transactions) == 0 {
		return nil
	}

	p.logger.Debug("polling non-terminal transactions",
		zap.Int("count", len(transactions)),
	)

	for _, tx := range transactions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Без reference code опрашивать нечего
		if tx.GatewayRef == "" {
			continue
		}
		if err := p.service.ActivePoll(ctx, tx.LocalRef); err != nil {
			p.logger.Warn("poll failed for transaction",
				zap.Error(err),
				zap.String("local_ref", tx.LocalRef),
			)
		}
	}

	return nil
}
