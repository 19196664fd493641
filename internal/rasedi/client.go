package rasedi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/rasedi-pay/internal/signing"
)

var (
	// ErrUnreachable - транспортная ошибка или таймаут. Клиент сам не ретраит,
	// retry policy принадлежит вызывающему коду.
	ErrUnreachable = errors.New("rasedi gateway is unreachable")
	// ErrRejected - шлюз ответил HTTP-ошибкой, тело ответа в сообщении
	ErrRejected = errors.New("rasedi gateway rejected the request")
	// ErrMalformedResponse - успешный ответ без ожидаемых полей (нарушение контракта)
	ErrMalformedResponse = errors.New("rasedi gateway returned malformed response")
)

const (
	// createTimeout больше остальных: create может включать provisioning на стороне шлюза
	createTimeout = 20 * time.Second
	statusTimeout = 10 * time.Second

	envLive = "live"
	envTest = "test"
)

// Config содержит конфигурацию клиента Rasedi API
type Config struct {
	BaseURL     string
	SecretKeyID string
	PrivateKey  string
	// Live выбирает окружение шлюза: true -> /live/, false -> /test/.
	// Выбор всегда явный, live по умолчанию не подставляется.
	Live bool
}

// Client выполняет подписанные вызовы к Rasedi API (create/status/cancel)
type Client struct {
	logger       *zap.Logger
	baseURL      string
	secretKeyID  string
	privateKey   string
	live         bool
	createClient *http.Client
	statusClient *http.Client
}

// NewClient создаёт новый клиент Rasedi API
func NewClient(logger *zap.Logger, cfg Config) *Client {
	return &Client{
		logger:      logger,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKeyID: cfg.SecretKeyID,
		privateKey:  cfg.PrivateKey,
		live:        cfg.Live,
		createClient: &http.Client{
			Timeout: createTimeout,
		},
		statusClient: &http.Client{
			Timeout: statusTimeout,
		},
	}
}

// CreateRequest - параметры создания платежа
type CreateRequest struct {
	Amount       int64 // в минимальных единицах валюты
	Title        string
	Description  string
	Gateways     []string
	RedirectURL  string
	CallbackURL  string
	CollectFee   bool
	CollectEmail bool
	CollectPhone bool
}

// CreateResult - результат успешного создания платежа
type CreateResult struct {
	RedirectURL   string
	ReferenceCode string
}

// StatusPayload - ответ шлюза о состоянии платежа.
// Reference code может прийти в поле referenceCode или reference.
type StatusPayload struct {
	ReferenceCode string `json:"referenceCode"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
}

// Ref возвращает reference code из любого из двух полей
func (p StatusPayload) Ref() string {
	if p.ReferenceCode != "" {
		return p.ReferenceCode
	}
	return p.Reference
}

// wire-формат тела create по контракту Rasedi
type createBody struct {
	Amount                     string   `json:"amount"`
	Title                      string   `json:"title"`
	Description                string   `json:"description"`
	Gateways                   []string `json:"gateways"`
	RedirectURL                string   `json:"redirectUrl"`
	CallbackURL                string   `json:"callbackUrl"`
	CollectFeeFromCustomer     bool     `json:"collectFeeFromCustomer"`
	CollectCustomerEmail       bool     `json:"collectCustomerEmail"`
	CollectCustomerPhoneNumber bool     `json:"collectCustomerPhoneNumber"`
}

type createResponse struct {
	RedirectURL   string `json:"redirectUrl"`
	ReferenceCode string `json:"referenceCode"`
}

// env возвращает сегмент окружения для путей API
func (c *Client) env() string {
	if c.live {
		return envLive
	}
	return envTest
}

// CreatePayment создаёт платёж в Rasedi.
// POST /v1/payment/rest/{env}/create, таймаут 20s.
// Amount сериализуется как десятичная строка минимальных единиц.
func (c *Client) CreatePayment(ctx context.Context, in CreateRequest) (CreateResult, error) {
	path := "/v1/payment/rest/" + c.env() + "/create"

	body := createBody{
		Amount:                     strconv.FormatInt(in.Amount, 10),
		Title:                      in.Title,
		Description:                in.Description,
		Gateways:                   in.Gateways,
		RedirectURL:                in.RedirectURL,
		CallbackURL:                in.CallbackURL,
		CollectFeeFromCustomer:     in.CollectFee,
		CollectCustomerEmail:       in.CollectEmail,
		CollectCustomerPhoneNumber: in.CollectPhone,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to marshal create payload: %w", err)
	}

	resp, err := c.doSigned(ctx, c.createClient, http.MethodPost, path, payload)
	if err != nil {
		return CreateResult{}, err
	}
	defer resp.Body.Close()

	var result createResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.RedirectURL == "" || result.ReferenceCode == "" {
		return CreateResult{}, fmt.Errorf("%w: missing redirectUrl or referenceCode", ErrMalformedResponse)
	}

	c.logger.Info("rasedi payment created",
		zap.String("reference_code", result.ReferenceCode),
		zap.String("env", c.env()),
	)

	return CreateResult{
		RedirectURL:   result.RedirectURL,
		ReferenceCode: result.ReferenceCode,
	}, nil
}

// FetchStatus запрашивает текущее состояние платежа.
// GET /v1/payment/rest/{env}/status/{referenceCode}, таймаут 10s.
func (c *Client) FetchStatus(ctx context.Context, referenceCode string) (StatusPayload, error) {
	path := "/v1/payment/rest/" + c.env() + "/status/" + referenceCode

	resp, err := c.doSigned(ctx, c.statusClient, http.MethodGet, path, nil)
	if err != nil {
		return StatusPayload{}, err
	}
	defer resp.Body.Close()

	var payload StatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return StatusPayload{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Status == "" {
		return StatusPayload{}, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}
	// Некоторые ответы не дублируют reference - подставляем запрошенный
	if payload.Ref() == "" {
		payload.ReferenceCode = referenceCode
	}
	return payload, nil
}

// Cancel отменяет платёж.
// PATCH /v1/payment/rest/{env}/cancel/{referenceCode}, таймаут 10s.
func (c *Client) Cancel(ctx context.Context, referenceCode string) error {
	path := "/v1/payment/rest/" + c.env() + "/cancel/" + referenceCode

	resp, err := c.doSigned(ctx, c.statusClient, http.MethodPatch, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Info("rasedi payment cancel requested",
		zap.String("reference_code", referenceCode),
	)
	return nil
}

// doSigned выполняет подписанный запрос: подпись считается для точной пары
// метод+относительный путь, заголовки x-id/x-signature на каждом вызове
func (c *Client) doSigned(ctx context.Context, client *http.Client, method, path string, payload []byte) (*http.Response, error) {
	signature, err := signing.Sign(method, path, c.secretKeyID, c.privateKey)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-id", c.secretKeyID)
	req.Header.Set("x-signature", signature)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	// При не-2xx читаем тело ответа для диагностики
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp, nil
}
