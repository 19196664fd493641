package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shestoi/rasedi-pay/internal/rasedi"
	"github.com/shestoi/rasedi-pay/internal/repository"
)

// ErrUnknownReference возвращается, когда нотификация ссылается на неизвестный
// gateway reference (например, устаревший или чужой webhook). Это recoverable
// condition: вызывающий код логирует её и подтверждает приём отправителю,
// чтобы шлюз не ретраил бесконечно.
var ErrUnknownReference = errors.New("notification for unknown gateway reference")

// ProviderSettings - конфигурация провайдера, с которой создаются новые транзакции
type ProviderSettings struct {
	SecretKeyID  string
	PrivateKey   string
	Gateways     []string
	CollectFee   bool
	CollectEmail bool
	CollectPhone bool
	Live         bool
	// ReturnURL/CallbackURL - абсолютные URL хоста для redirect и webhook
	ReturnURL   string
	CallbackURL string
}

// ReconciliationService - ядро сверки платежей.
// Принимает события из двух каналов (webhook и активный poll), сериализует
// обновления по одной транзакции и доводит её до терминального состояния
// ровно один раз. Оба канала проходят через ApplyNotification, поэтому
// их порядок прихода не важен: терминальный исход никогда не перезаписывается.
type ReconciliationService struct {
	logger   *zap.Logger
	repo     repository.TransactionRepository
	gateway  GatewayClient
	events   EventPublisher // nil, если публикация событий выключена
	provider ProviderSettings

	// locks сериализует read->map->write по gateway reference
	locks *keyedMutex

	// inFlight не даёт запустить второй poll по транзакции, пока идёт первый
	pollMu   sync.Mutex
	inFlight map[string]struct{}
}

// NewReconciliationService создаёт новый экземпляр ReconciliationService
// events может быть nil - тогда терминальные события не публикуются
func NewReconciliationService(
	logger *zap.Logger,
	repo repository.TransactionRepository,
	gateway GatewayClient,
	events EventPublisher,
	provider ProviderSettings,
) *ReconciliationService {
	return &ReconciliationService{
		logger:   logger,
		repo:     repo,
		gateway:  gateway,
		events:   events,
		provider: provider,
		locks:    newKeyedMutex(),
		inFlight: make(map[string]struct{}),
	}
}

// CreateTransactionInput - параметры создания платёжной транзакции
type CreateTransactionInput struct {
	LocalRef    string
	Amount      int64 // в минимальных единицах валюты
	Title       string
	Description string
}

// CreateTransactionResult - результат успешного создания
type CreateTransactionResult struct {
	RedirectURL   string
	ReferenceCode string
}

// CreateTransaction создаёт локальную транзакцию и платёж в шлюзе.
// При успехе привязывает reference code (ровно один раз) и переводит
// транзакцию created -> pending. При ошибке шлюза транзакция остаётся
// в created, ошибка возвращается вызывающему - checkout должен показать
// её пользователю, молчаливых ретраев нет.
func (s *ReconciliationService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (CreateTransactionResult, error) {
	if in.LocalRef == "" {
		return CreateTransactionResult{}, fmt.Errorf("local ref is required")
	}
	if in.Amount <= 0 {
		return CreateTransactionResult{}, fmt.Errorf("invalid amount: must be greater than 0")
	}

	tx := repository.Transaction{
		LocalRef: in.LocalRef,
		Amount:   in.Amount,
		State:    repository.StateCreated,
		Provider: repository.ProviderSnapshot{
			SecretKeyID:  s.provider.SecretKeyID,
			PrivateKey:   s.provider.PrivateKey,
			Gateways:     s.provider.Gateways,
			CollectFee:   s.provider.CollectFee,
			CollectEmail: s.provider.CollectEmail,
			CollectPhone: s.provider.CollectPhone,
			Live:         s.provider.Live,
		},
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return CreateTransactionResult{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	title := in.Title
	if title == "" {
		title = "Order"
	}
	description := in.Description
	if description == "" {
		description = "Order " + in.LocalRef
	}
	gateways := s.provider.Gateways
	if len(gateways) == 0 {
		// Админ должен выбрать шлюзы, но без выбора платёж не должен падать
		gateways = []string{"CREDIT_CARD"}
	}

	result, err := s.gateway.CreatePayment(ctx, rasedi.CreateRequest{
		Amount:       in.Amount,
		Title:        title,
		Description:  description,
		Gateways:     gateways,
		RedirectURL:  s.provider.ReturnURL,
		CallbackURL:  s.provider.CallbackURL,
		CollectFee:   s.provider.CollectFee,
		CollectEmail: s.provider.CollectEmail,
		CollectPhone: s.provider.CollectPhone,
	})
	if err != nil {
		// Транзакция остаётся в created
		s.logger.Error("payment creation failed",
			zap.Error(err),
			zap.String("local_ref", in.LocalRef),
		)
		return CreateTransactionResult{}, fmt.Errorf("payment creation failed: %w", err)
	}

	if err := s.repo.SetGatewayRef(ctx, in.LocalRef, result.ReferenceCode); err != nil {
		return CreateTransactionResult{}, fmt.Errorf("failed to persist gateway reference: %w", err)
	}
	if err := s.repo.SetState(ctx, in.LocalRef, repository.StatePending, ""); err != nil {
		return CreateTransactionResult{}, fmt.Errorf("failed to set pending state: %w", err)
	}

	s.logger.Info("transaction created",
		zap.String("local_ref", in.LocalRef),
		zap.String("reference_code", result.ReferenceCode),
		zap.Int64("amount", in.Amount),
	)

	return CreateTransactionResult{
		RedirectURL:   result.RedirectURL,
		ReferenceCode: result.ReferenceCode,
	}, nil
}

// ApplyNotification применяет статус из нотификации (webhook или poll)
// к транзакции с указанным gateway reference.
// Уже терминальная транзакция - no-op (дубликаты webhook и poll гонок
// логируются, но не применяются). Переход выполняется под эксклюзивной
// блокировкой по reference на всё время read->map->write.
func (s *ReconciliationService) ApplyNotification(ctx context.Context, referenceCode, status string) error {
	if referenceCode == "" {
		return fmt.Errorf("%w: empty reference", ErrUnknownReference)
	}

	s.locks.Lock(referenceCode)
	defer s.locks.Unlock(referenceCode)

	tx, err := s.repo.GetByGatewayRef(ctx, referenceCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownReference, referenceCode)
		}
		return fmt.Errorf("failed to look up transaction: %w", err)
	}

	if tx.State.Terminal() {
		s.logger.Info("duplicate notification for terminal transaction, ignoring",
			zap.String("local_ref", tx.LocalRef),
			zap.String("reference_code", referenceCode),
			zap.String("state", string(tx.State)),
			zap.String("status", status),
		)
		return nil
	}

	newState, reason := MapStatus(status)
	if newState == tx.State {
		s.logger.Debug("notification does not change state",
			zap.String("local_ref", tx.LocalRef),
			zap.String("status", status),
		)
		return nil
	}

	if err := s.repo.SetState(ctx, tx.LocalRef, newState, reason); err != nil {
		if errors.Is(err, repository.ErrTerminalState) {
			// Другой процесс успел записать терминальный исход
			s.logger.Info("transaction already terminal, notification ignored",
				zap.String("local_ref", tx.LocalRef),
				zap.String("status", status),
			)
			return nil
		}
		return fmt.Errorf("failed to set state: %w", err)
	}

	s.logger.Info("transaction state updated",
		zap.String("local_ref", tx.LocalRef),
		zap.String("reference_code", referenceCode),
		zap.String("status", status),
		zap.String("state", string(newState)),
		zap.String("reason", reason),
	)

	if newState.Terminal() && s.events != nil {
		event := TerminalEvent{
			LocalRef:   tx.LocalRef,
			GatewayRef: referenceCode,
			State:      newState,
			Reason:     reason,
		}
		if err := s.events.PublishTerminal(ctx, event); err != nil {
			// Публикация не блокирует переход состояния
			s.logger.Error("failed to publish terminal event",
				zap.Error(err),
				zap.String("local_ref", tx.LocalRef),
			)
		}
	}

	return nil
}

// ActivePoll активно запрашивает статус у шлюза и применяет его.
// Вызывается при возврате пользователя на сайт, явном запросе статуса
// и периодической проверке. Валиден только для нетерминальной транзакции
// с reference code, иначе no-op (без reference уведомлений не бывает).
// Транспортные ошибки poll глушатся (логируются): неудавшийся poll никогда
// не переводит транзакцию в error - это может сделать только статус,
// явно сообщённый шлюзом.
func (s *ReconciliationService) ActivePoll(ctx context.Context, localRef string) error {
	tx, err := s.repo.GetByLocalRef(ctx, localRef)
	if err != nil {
		return err
	}

	if tx.State.Terminal() {
		return nil
	}
	if tx.GatewayRef == "" {
		s.logger.Debug("no gateway reference to poll",
			zap.String("local_ref", localRef),
		)
		return nil
	}

	// Не запускаем второй poll, пока по этой транзакции идёт первый
	if !s.beginPoll(localRef) {
		s.logger.Debug("poll already in flight, skipping",
			zap.String("local_ref", localRef),
		)
		return nil
	}
	defer s.endPoll(localRef)

	payload, err := s.gateway.FetchStatus(ctx, tx.GatewayRef)
	if err != nil {
		s.logger.Warn("status poll failed",
			zap.Error(err),
			zap.String("local_ref", localRef),
			zap.String("reference_code", tx.GatewayRef),
		)
		return nil
	}

	referenceCode := payload.Ref()
	if referenceCode == "" {
		referenceCode = tx.GatewayRef
	}
	return s.ApplyNotification(ctx, referenceCode, payload.Status)
}

// HandleReturn - best-effort обработка возврата пользователя от шлюза.
// Находит транзакцию по gateway reference и запускает poll; любые ошибки
// логируются и не всплывают - пользовательский flow не должен падать,
// последнее известное состояние покажет страница статуса.
func (s *ReconciliationService) HandleReturn(ctx context.Context, referenceCode string) {
	if referenceCode == "" {
		return
	}
	tx, err := s.repo.GetByGatewayRef(ctx, referenceCode)
	if err != nil {
		s.logger.Warn("return with unknown reference",
			zap.String("reference_code", referenceCode),
			zap.Error(err),
		)
		return
	}
	if err := s.ActivePoll(ctx, tx.LocalRef); err != nil {
		s.logger.Warn("poll on return failed",
			zap.Error(err),
			zap.String("local_ref", tx.LocalRef),
		)
	}
}

// Cancel запрашивает отмену платежа у шлюза.
// Валиден только для нетерминальной транзакции с reference code.
// Новое состояние придёт обычным путём (webhook или poll); после успешной
// отмены сразу делаем best-effort poll.
func (s *ReconciliationService) Cancel(ctx context.Context, localRef string) error {
	tx, err := s.repo.GetByLocalRef(ctx, localRef)
	if err != nil {
		return err
	}
	if tx.State.Terminal() {
		return fmt.Errorf("%w: %s", repository.ErrTerminalState, localRef)
	}
	if tx.GatewayRef == "" {
		return fmt.Errorf("transaction %s has no gateway reference", localRef)
	}

	if err := s.gateway.Cancel(ctx, tx.GatewayRef); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}

	if err := s.ActivePoll(ctx, localRef); err != nil {
		s.logger.Warn("poll after cancel failed",
			zap.Error(err),
			zap.String("local_ref", localRef),
		)
	}
	return nil
}

// GetTransaction возвращает текущее состояние транзакции по локальному reference
func (s *ReconciliationService) GetTransaction(ctx context.Context, localRef string) (repository.Transaction, error) {
	return s.repo.GetByLocalRef(ctx, localRef)
}

func (s *ReconciliationService) beginPoll(localRef string) bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if _, exists := s.inFlight[localRef]; exists {
		return false
	}
	s.inFlight[localRef] = struct{}{}
	return true
}

func (s *ReconciliationService) endPoll(localRef string) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	delete(s.inFlight, localRef)
}
