package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/rasedi-pay/platform/health/http"
	platformobservability "github.com/shestoi/rasedi-pay/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер платёжного сервиса
// readiness - функция для проверки готовности сервиса (например, проверка БД).
// Если readiness возвращает false, health endpoint вернёт 503 Service Unavailable.
// logger используется для observability HTTP middleware (trace_id в логах).
func NewRouter(handler *Handler, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("rasedi-pay", logger))
	}

	router.Route("/payment/rasedi", func(r chi.Router) {
		r.Post("/create", handler.PostCreate)
		r.Post("/webhook", handler.PostWebhook)
		// Шлюз может вернуть пользователя и GET-ом, и POST-ом
		r.Get("/return", handler.HandleReturn)
		r.Post("/return", handler.HandleReturn)
		r.Get("/status/{localRef}", func(w http.ResponseWriter, r *http.Request) {
			localRef := chi.URLParam(r, "localRef")
			handler.GetStatus(w, r, localRef)
		})
		r.Post("/cancel/{localRef}", func(w http.ResponseWriter, r *http.Request) {
			localRef := chi.URLParam(r, "localRef")
			handler.PostCancel(w, r, localRef)
		})
	})

	// Health без middleware
	router.Get("/health", platformhealth.Handler(readiness))

	return router
}
