package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
	"content-platform-billing/internal/usecase"
)

type priceCalculateRequest struct {
	BasePrice   decimal.Decimal   `json:"base_price"`
	ItemType    model.ItemType    `json:"item_type"`
	ItemDetails model.ItemDetails `json:"item_details"`
	UserID      string            `json:"user_id,omitempty"`
}

// Handler for a single price calculation.
func priceCalculateHandler(engine usecase.PromotionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceCalculateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		result := engine.CalculateFinalPrice(r.Context(), req.BasePrice, req.ItemType, req.ItemDetails, req.UserID)
		writeJSON(w, http.StatusOK, result)
	}
}

type priceBatchRequest struct {
	UserID string `json:"user_id,omitempty"`
	Items  []struct {
		BasePrice   decimal.Decimal   `json:"base_price"`
		ItemType    model.ItemType    `json:"item_type"`
		ItemDetails model.ItemDetails `json:"item_details"`
	} `json:"items"`
}

func priceBatchHandler(engine usecase.PromotionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		items := make([]usecase.PriceRequest, len(req.Items))
		for i, it := range req.Items {
			items[i] = usecase.PriceRequest{BasePrice: it.BasePrice, ItemType: it.ItemType, ItemDetails: it.ItemDetails}
		}
		results := engine.CalculateBatchPrices(r.Context(), items, req.UserID)
		writeJSON(w, http.StatusOK, struct {
			Results []model.FinalPriceResult `json:"results"`
		}{Results: results})
	}
}

func checkoutQuoteHandler(checkout usecase.CheckoutUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceCalculateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		result := checkout.Quote(r.Context(), req.UserID, req.BasePrice, req.ItemType, req.ItemDetails)
		writeJSON(w, http.StatusOK, result)
	}
}

type checkoutCompleteRequest struct {
	UserID  string                 `json:"user_id"`
	OrderID string                 `json:"order_id"`
	Quote   model.FinalPriceResult `json:"quote"`
}

func checkoutCompleteHandler(checkout usecase.CheckoutUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutCompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		out, err := checkout.CompletePurchase(r.Context(), req.UserID, req.OrderID, req.Quote)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to complete purchase", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			GrantedCredits   int64               `json:"granted_credits"`
			PendingGifts     []model.AppliedGift `json:"pending_gifts,omitempty"`
			RulesIncremented int                 `json:"rules_incremented"`
		}{out.GrantedCredits, out.PendingGifts, out.RulesIncremented})
	}
}

func creditsBalanceHandler(ledger usecase.CreditLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		credits, err := ledger.GetAvailableCredits(r.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to read balance", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			UserID  string `json:"user_id"`
			Credits int64  `json:"credits"`
		}{userID, credits})
	}
}

// creditsExpiringHandler serves the "expiring soon" aggregation.
// Accepts an optional 'days' query parameter (default 7).
func creditsExpiringHandler(ledger usecase.CreditLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		days := 0
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "Invalid 'days' parameter", http.StatusBadRequest)
				return
			}
			days = n
		}
		exp, err := ledger.GetExpiringSoonCredits(r.Context(), userID, days)
		if err != nil {
			http.Error(w, "Failed to read expiring credits", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, exp)
	}
}

func creditsExpiryHandler(ledger usecase.CreditLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		buckets, err := ledger.GetAllCreditsExpiry(r.Context(), userID)
		if err != nil {
			http.Error(w, "Failed to read credit expiry", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Items []model.ExpiryBucket `json:"items"`
		}{buckets})
	}
}

// creditsHistoryHandler returns one page of transaction history.
// Accepts 'limit', 'offset' and 'type' query parameters.
func creditsHistoryHandler(ledger usecase.CreditLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		q := r.URL.Query()

		var f repository.HistoryFilter
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "Invalid 'limit' parameter", http.StatusBadRequest)
				return
			}
			f.Limit = n
		}
		if v := q.Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "Invalid 'offset' parameter", http.StatusBadRequest)
				return
			}
			f.Offset = n
		}
		if v := q.Get("type"); v != "" {
			t := model.TransactionType(v)
			f.Type = &t
		}

		lots, total, err := ledger.History(r.Context(), userID, f)
		if err != nil {
			http.Error(w, "Failed to read history", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Items []*model.CreditLot `json:"items"`
			Total int64              `json:"total"`
		}{lots, total})
	}
}

func ruleCreateHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule model.PromotionRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		created, err := admin.Create(r.Context(), &rule)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to create rule", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func ruleGetHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := admin.Get(r.Context(), chi.URLParam(r, "ruleID"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Rule not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get rule", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

func ruleUpdateHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule model.PromotionRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		rule.ID = chi.URLParam(r, "ruleID")
		if err := admin.Update(r.Context(), &rule); err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "Rule not found", http.StatusNotFound)
			default:
				http.Error(w, "Failed to update rule", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

func rulePauseHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := admin.Pause(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Rule not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to pause rule", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type rulePreviewRequest struct {
	BasePrice   decimal.Decimal   `json:"base_price"`
	ItemType    model.ItemType    `json:"item_type"`
	ItemDetails model.ItemDetails `json:"item_details"`
	TestRuleIDs []string          `json:"test_rule_ids,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
}

func rulePreviewHandler(engine usecase.PromotionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rulePreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		result := engine.PreviewPriceEffect(r.Context(), req.BasePrice, req.ItemType, req.ItemDetails, req.TestRuleIDs, req.UserID)
		writeJSON(w, http.StatusOK, result)
	}
}

type ruleBestRequest struct {
	ItemType       model.ItemType    `json:"item_type"`
	ItemDetails    model.ItemDetails `json:"item_details"`
	ReferencePrice decimal.Decimal   `json:"reference_price"`
	UserID         string            `json:"user_id,omitempty"`
	Limit          int               `json:"limit,omitempty"`
}

func ruleBestHandler(engine usecase.PromotionEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ruleBestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		recs := engine.GetBestPromotionRules(r.Context(), req.ItemType, req.ItemDetails, req.ReferencePrice, req.UserID, req.Limit)
		writeJSON(w, http.StatusOK, struct {
			Rules []usecase.RuleRecommendation `json:"rules"`
		}{recs})
	}
}

func ruleConflictsHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var candidate *model.PromotionRule
		if r.ContentLength > 0 {
			candidate = &model.PromotionRule{}
			if err := json.NewDecoder(r.Body).Decode(candidate); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
		}
		report, err := admin.CheckConflicts(r.Context(), candidate)
		if err != nil {
			http.Error(w, "Failed to analyze rules", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func cacheRefreshHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := admin.RefreshCache(r.Context()); err != nil {
			http.Error(w, "Failed to refresh cache", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func cacheStatsHandler(admin usecase.RuleAdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connected, size, ttl := admin.CacheStats(r.Context())
		writeJSON(w, http.StatusOK, struct {
			Connected bool   `json:"connected"`
			Size      int    `json:"size"`
			TTL       string `json:"ttl"`
		}{connected, size, ttl.Round(time.Second).String()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
