package maintenance

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// providerCode - код провайдера в строках payment_method_lines
const providerCode = "rasedi"

// Journal - банковский журнал хоста, которому нужна method line провайдера
type Journal struct {
	ID   int64
	Name string
}

// JournalStore определяет узкий интерфейс к учётным записям хоста
type JournalStore interface {
	// ListBankJournals возвращает все журналы типа bank
	ListBankJournals(ctx context.Context) ([]Journal, error)
	// HasMethodLine проверяет, есть ли у журнала method line указанного провайдера
	HasMethodLine(ctx context.Context, journalID int64, provider string) (bool, error)
	// CreateMethodLine создаёт method line провайдера для журнала
	CreateMethodLine(ctx context.Context, journalID int64, provider, name string) error
}

// Provisioner выполняет идемпотентный provisioning учётных записей:
// досоздаёт отсутствующие payment method lines для банковских журналов.
// Запускается один раз при старте/конфигурации, а не на каждом платеже -
// авто-починка на hot path маскировала бы ошибки конфигурации.
type Provisioner struct {
	logger *zap.Logger
	store  JournalStore
}

// NewProvisioner создаёт новый Provisioner
func NewProvisioner(logger *zap.Logger, store JournalStore) *Provisioner {
	return &Provisioner{
		logger: logger,
		store:  store,
	}
}

// EnsureMethodLines досоздаёт отсутствующие method lines.
// Ошибка по одному журналу логируется и не прерывает остальные;
// ошибкой завершается только невозможность получить список журналов.
func (p *Provisioner) EnsureMethodLines(ctx context.Context) error {
	journals, err := p.store.ListBankJournals(ctx)
	if err != nil {
		return fmt.Errorf("failed to list bank journals: %w", err)
	}

	p.logger.Info("checking bank journals for provider method lines",
		zap.Int("journals", len(journals)),
	)

	for _, journal := range journals {
		exists, err := p.store.HasMethodLine(ctx, journal.ID, providerCode)
		if err != nil {
			p.logger.Warn("failed to check method line",
				zap.Error(err),
				zap.String("journal", journal.Name),
			)
			continue
		}
		if exists {
			continue
		}

		if err := p.store.CreateMethodLine(ctx, journal.ID, providerCode, "Rasedi"); err != nil {
			p.logger.Warn("failed to create method line",
				zap.Error(err),
				zap.String("journal", journal.Name),
			)
			continue
		}
		p.logger.Info("created missing payment method line",
			zap.String("journal", journal.Name),
		)
	}

	return nil
}
