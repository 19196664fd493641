package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/rasedi-pay/internal/repository"
	"github.com/shestoi/rasedi-pay/internal/service"
)

// returnPollTimeout ограничивает poll при возврате пользователя:
// redirect не должен ждать дольше, даже если шлюз отвечает медленно
const returnPollTimeout = 3 * time.Second

// statusPageURL - страница, на которую уводим пользователя после возврата от шлюза
const statusPageURL = "/payment/status"

// Handler содержит HTTP-обработчики платёжного сервиса
// Зависит от service слоя, но не знает о деталях реализации (шлюз, БД и т.д.)
type Handler struct {
	logger  *zap.Logger
	service *service.ReconciliationService
}

// NewHandler создаёт новый HTTP handler
func NewHandler(logger *zap.Logger, svc *service.ReconciliationService) *Handler {
	return &Handler{
		logger:  logger,
		service: svc,
	}
}

// CreateRequest представляет HTTP запрос на создание платежа
type CreateRequest struct {
	LocalRef    *string `json:"local_ref"`
	Amount      *int64  `json:"amount"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// CreateResponse представляет HTTP ответ на создание платежа
type CreateResponse struct {
	LocalRef      string `json:"local_ref"`
	RedirectURL   string `json:"redirect_url"`
	ReferenceCode string `json:"reference_code"`
}

// TransactionResponse представляет HTTP ответ с состоянием транзакции
type TransactionResponse struct {
	LocalRef   string `json:"local_ref"`
	GatewayRef string `json:"gateway_ref,omitempty"`
	Amount     int64  `json:"amount"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
}

// webhookPayload - тело нотификации от шлюза.
// Reference code может прийти в поле referenceCode или reference.
type webhookPayload struct {
	ReferenceCode string `json:"referenceCode"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
}

func (p webhookPayload) ref() string {
	if p.ReferenceCode != "" {
		return p.ReferenceCode
	}
	return p.Reference
}

// PostCreate обрабатывает POST /payment/rasedi/create - создание платежа
func (h *Handler) PostCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqBody CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		h.logger.Warn("create: invalid JSON", zap.Error(err))
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Валидация входных данных
	if reqBody.LocalRef == nil || *reqBody.LocalRef == "" {
		http.Error(w, "Invalid payload: local_ref is required", http.StatusBadRequest)
		return
	}
	if reqBody.Amount == nil || *reqBody.Amount <= 0 {
		http.Error(w, "Invalid payload: amount must be > 0", http.StatusBadRequest)
		return
	}

	in := service.CreateTransactionInput{
		LocalRef: *reqBody.LocalRef,
		Amount:   *reqBody.Amount,
	}
	if reqBody.Title != nil {
		in.Title = *reqBody.Title
	}
	if reqBody.Description != nil {
		in.Description = *reqBody.Description
	}

	result, err := h.service.CreateTransaction(ctx, in)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			http.Error(w, fmt.Sprintf("Transaction already exists: %s", *reqBody.LocalRef), http.StatusConflict)
			return
		}
		h.logger.Error("create: payment creation failed",
			zap.Error(err),
			zap.String("local_ref", *reqBody.LocalRef),
		)
		// Ошибка шлюза возвращается пользователю, молчаливых ретраев нет
		http.Error(w, fmt.Sprintf("Failed to create payment: %v", err), http.StatusBadGateway)
		return
	}

	resp := CreateResponse{
		LocalRef:      *reqBody.LocalRef,
		RedirectURL:   result.RedirectURL,
		ReferenceCode: result.ReferenceCode,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("create: failed to encode response", zap.Error(err))
	}
}

// PostWebhook обрабатывает POST /payment/rasedi/webhook - нотификации шлюза.
// Всегда подтверждает приём ("OK"), кроме нечитаемого тела: неизвестный
// reference или внутренняя ошибка не должны заставлять шлюз ретраить -
// периодический poll доведёт транзакцию до актуального состояния сам.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("webhook: invalid JSON", zap.Error(err))
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if payload.ref() == "" || payload.Status == "" {
		h.logger.Warn("webhook: missing reference or status",
			zap.String("reference_code", payload.ref()),
			zap.String("status", payload.Status),
		)
		h.acknowledge(w)
		return
	}

	if err := h.service.ApplyNotification(ctx, payload.ref(), payload.Status); err != nil {
		if errors.Is(err, service.ErrUnknownReference) {
			h.logger.Warn("webhook: unknown reference",
				zap.String("reference_code", payload.ref()),
			)
		} else {
			h.logger.Error("webhook: failed to apply notification",
				zap.Error(err),
				zap.String("reference_code", payload.ref()),
			)
		}
	}

	h.acknowledge(w)
}

// HandleReturn обрабатывает GET|POST /payment/rasedi/return - возврат
// пользователя от шлюза. Делает best-effort poll с жёстким таймаутом
// и всегда уводит пользователя на страницу статуса через 303.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	referenceCode := r.URL.Query().Get("referenceCode")
	if referenceCode == "" {
		referenceCode = r.URL.Query().Get("reference")
	}

	if referenceCode != "" {
		ctx, cancel := context.WithTimeout(r.Context(), returnPollTimeout)
		defer cancel()
		h.service.HandleReturn(ctx, referenceCode)
	}

	http.Redirect(w, r, statusPageURL, http.StatusSeeOther)
}

// GetStatus обрабатывает GET /payment/rasedi/status/{localRef} -
// текущее состояние транзакции. Перед чтением делает best-effort poll,
// чтобы отдать максимально свежие данные.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request, localRef string) {
	ctx := r.Context()

	if err := h.service.ActivePoll(ctx, localRef); err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Warn("status: poll failed",
			zap.Error(err),
			zap.String("local_ref", localRef),
		)
	}

	tx, err := h.service.GetTransaction(ctx, localRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		h.logger.Error("status: failed to get transaction",
			zap.Error(err),
			zap.String("local_ref", localRef),
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := TransactionResponse{
		LocalRef:   tx.LocalRef,
		GatewayRef: tx.GatewayRef,
		Amount:     tx.Amount,
		State:      string(tx.State),
		Reason:     tx.Reason,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("status: failed to encode response", zap.Error(err))
	}
}

// PostCancel обрабатывает POST /payment/rasedi/cancel/{localRef} - отмену платежа
func (h *Handler) PostCancel(w http.ResponseWriter, r *http.Request, localRef string) {
	ctx := r.Context()

	err := h.service.Cancel(ctx, localRef)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			http.Error(w, "Transaction not found", http.StatusNotFound)
		case errors.Is(err, repository.ErrTerminalState):
			http.Error(w, "Transaction is already in a terminal state", http.StatusConflict)
		default:
			h.logger.Error("cancel: failed",
				zap.Error(err),
				zap.String("local_ref", localRef),
			)
			http.Error(w, fmt.Sprintf("Failed to cancel payment: %v", err), http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cancel requested"})
}

// acknowledge отвечает шлюзу подтверждением приёма нотификации
func (h *Handler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
