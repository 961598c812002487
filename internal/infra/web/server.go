package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"content-platform-billing/internal/usecase"
)

// Server exposes the pricing, ledger and rule administration endpoints.
type Server struct {
	engine   usecase.PromotionEngine
	ledger   usecase.CreditLedger
	checkout usecase.CheckoutUseCase
	admin    usecase.RuleAdminUseCase
	apiKey   string
	log      *zerolog.Logger
}

func NewServer(
	engine usecase.PromotionEngine,
	ledger usecase.CreditLedger,
	checkout usecase.CheckoutUseCase,
	admin usecase.RuleAdminUseCase,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		engine:   engine,
		ledger:   ledger,
		checkout: checkout,
		admin:    admin,
		apiKey:   apiKey,
		log:      logger,
	}
}

// Router builds the chi router with all routes attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/price/calculate", priceCalculateHandler(s.engine))
		r.Post("/price/batch", priceBatchHandler(s.engine))
		r.Post("/checkout/quote", checkoutQuoteHandler(s.checkout))
		r.Post("/checkout/complete", checkoutCompleteHandler(s.checkout))

		r.Get("/credits/{userID}", creditsBalanceHandler(s.ledger))
		r.Get("/credits/{userID}/expiring", creditsExpiringHandler(s.ledger))
		r.Get("/credits/{userID}/expiry", creditsExpiryHandler(s.ledger))
		r.Get("/credits/{userID}/history", creditsHistoryHandler(s.ledger))

		// Rule administration requires the admin API key.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/rules", ruleCreateHandler(s.admin))
			r.Get("/rules/{ruleID}", ruleGetHandler(s.admin))
			r.Put("/rules/{ruleID}", ruleUpdateHandler(s.admin))
			r.Post("/rules/{ruleID}/pause", rulePauseHandler(s.admin))
			r.Post("/rules/preview", rulePreviewHandler(s.engine))
			r.Post("/rules/best", ruleBestHandler(s.engine))
			r.Post("/rules/conflicts", ruleConflictsHandler(s.admin))
			r.Post("/rules/cache/refresh", cacheRefreshHandler(s.admin))
			r.Get("/rules/cache/stats", cacheStatsHandler(s.admin))
		})
	})

	return r
}

// authMiddleware provides simple Bearer token authentication for admin routes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
