package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MichaelCampos91/pedidos-sub000/internal/audit"
	"github.com/MichaelCampos91/pedidos-sub000/internal/checkout"
	"github.com/MichaelCampos91/pedidos-sub000/internal/config"
	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/metrics"
	"github.com/MichaelCampos91/pedidos-sub000/internal/middleware"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
	"github.com/MichaelCampos91/pedidos-sub000/internal/quote"
)

type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, cursor string, limit int64, status string) ([]*models.Order, error)
	SetStatus(ctx context.Context, id string, status models.OrderStatus, paymentID string) error
}

type RuleRepository interface {
	List(ctx context.Context) ([]models.ShippingRule, error)
	GetByID(ctx context.Context, id int64) (*models.ShippingRule, error)
	Create(ctx context.Context, rule *models.ShippingRule) error
	Update(ctx context.Context, rule *models.ShippingRule) error
	Delete(ctx context.Context, id int64) error
}

type SettingsRepository interface {
	ProductionDays(ctx context.Context) (int, error)
	SetProductionDays(ctx context.Context, days int) error
}

type LogLister interface {
	List(ctx context.Context, orderID string, limit, offset int64) ([]audit.Entry, error)
}

type QuoteService interface {
	Quote(ctx context.Context, req quote.Request) (*quote.Response, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Response, error)
	HandleWebhook(ctx context.Context, event gateway.PaymentWebhookEvent) error
}

type Dashboard interface {
	Get() metrics.Snapshot
}

type Server struct {
	orders    OrderRepository
	rules     RuleRepository
	settings  SettingsRepository
	logs      LogLister
	quotes    QuoteService
	checkouts CheckoutService
	dashboard Dashboard
	auditPool *audit.WorkerPool

	webhookSecret string
	user          string
	password      string
	addr          string
}

func NewServer(orders OrderRepository, rules RuleRepository, settings SettingsRepository,
	logs LogLister, quotes QuoteService, checkouts CheckoutService, dashboard Dashboard,
	auditPool *audit.WorkerPool, cfg *config.Config,
) *Server {
	return &Server{
		orders:        orders,
		rules:         rules,
		settings:      settings,
		logs:          logs,
		quotes:        quotes,
		checkouts:     checkouts,
		dashboard:     dashboard,
		auditPool:     auditPool,
		webhookSecret: cfg.PaymentWebhookSecret,
		user:          cfg.Username,
		password:      cfg.Password,
		addr:          cfg.Addr(),
	}
}

var adminMethods = []string{"GET", "POST", "PUT", "DELETE"}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handleWith(mux, "/orders", s.handleOrders,
		[]string{"POST"}, adminMethods,
	)
	s.handleWith(mux, "/orders/", s.handleOrderOne,
		[]string{"PUT", "DELETE"}, adminMethods,
	)
	s.handleWith(mux, "/orders-status/", s.handleOrderStatus,
		[]string{"PUT"}, adminMethods,
	)
	s.handleWith(mux, "/rules", s.handleRules,
		[]string{"POST"}, adminMethods,
	)
	s.handleWith(mux, "/rules/", s.handleRuleOne,
		[]string{"PUT", "DELETE"}, adminMethods,
	)
	s.handleWith(mux, "/settings/production-days", s.handleProductionDays,
		[]string{"PUT"}, adminMethods,
	)
	s.handleWith(mux, "/logs", s.handleLogs, nil, adminMethods)
	s.handleWith(mux, "/dashboard", s.handleDashboard, nil, adminMethods)

	// customer-facing endpoints, no basic auth
	s.handleWith(mux, "/checkout/quote", s.handleQuote, []string{"POST"}, nil)
	s.handleWith(mux, "/checkout", s.handleCheckout, []string{"POST"}, nil)
	mux.HandleFunc("/webhooks/payment", s.handlePaymentWebhook)
}

func (s *Server) Run() error {
	mux := http.NewServeMux()

	s.RegisterRoutes(mux)

	log.Printf("Server listen on %s...", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *Server) handleWith(mux *http.ServeMux, path string,
	handlerFunc http.HandlerFunc,
	logMethods []string, authMethods []string,
) {
	finalHandler := middleware.LogMiddleware(s.auditPool, logMethods...)(
		middleware.BasicAuthMiddleware(s.user, s.password, authMethods...)(
			handlerFunc,
		),
	)
	mux.Handle(path, finalHandler)
}

// --- admin: orders ---

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateOrder(w, r)
	case http.MethodGet:
		s.handleListOrders(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOrderOne(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/orders/")
	if id == "" {
		http.Error(w, "missing ID", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetOrder(w, r, id)
	case http.MethodPut:
		s.handleUpdateOrder(w, r, id)
	case http.MethodDelete:
		s.handleDeleteOrder(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var o models.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPendingPayment
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if err := s.orders.Create(r.Context(), &o); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor := q.Get("cursor")
	limit, err := strconv.ParseInt(q.Get("limit"), 10, 64)
	if err != nil {
		limit = 10
	}
	status := q.Get("status")

	orders, err := s.orders.List(r.Context(), cursor, limit, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := s.orders.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if o == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request, id string) {
	var updated models.Order
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if updated.ID != id {
		http.Error(w, "ID mismatch", http.StatusBadRequest)
		return
	}
	updated.UpdatedAt = time.Now().UTC()
	if err := s.orders.Update(r.Context(), &updated); err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.orders.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/orders-status/")
	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}

	order, err := s.orders.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if order == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	oldState := order.Status
	if err := order.Transition(body.Status); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.orders.SetStatus(r.Context(), id, order.Status, order.PaymentID); err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}
	if s.auditPool != nil {
		s.auditPool.Log(audit.Entry{
			Timestamp: time.Now().UTC(),
			OrderID:   id,
			OldState:  string(oldState),
			NewState:  string(order.Status),
			Endpoint:  r.URL.Path,
			Message:   "status changed by admin",
		})
	}
	writeJSON(w, http.StatusOK, order)
}

// --- admin: rules and settings ---

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := s.rules.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rules)
	case http.MethodPost:
		var rule models.ShippingRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		if err := validateRule(&rule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.rules.Create(r.Context(), &rule); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRuleOne(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/rules/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "bad rule ID", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rule, err := s.rules.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rule == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	case http.MethodPut:
		var rule models.ShippingRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		rule.ID = id
		if err := validateRule(&rule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.rules.Update(r.Context(), &rule); err != nil {
			http.Error(w, err.Error(), statusForErr(err))
			return
		}
		writeJSON(w, http.StatusOK, rule)
	case http.MethodDelete:
		if err := s.rules.Delete(r.Context(), id); err != nil {
			http.Error(w, err.Error(), statusForErr(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProductionDays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		days, err := s.settings.ProductionDays(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"production_days": days})
	case http.MethodPut:
		var body struct {
			ProductionDays int `json:"production_days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		if err := s.settings.SetProductionDays(r.Context(), body.ProductionDays); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"production_days": body.ProductionDays})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- admin: logs and dashboard ---

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)

	entries, err := s.logs.List(r.Context(), q.Get("order_id"), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.dashboard.Get())
}

// --- checkout ---

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req quote.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	resp, err := s.quotes.Quote(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	resp, err := s.checkouts.Checkout(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	signature := r.Header.Get("X-Signature")
	if !gateway.VerifyWebhookSignature(body, signature, s.webhookSecret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event gateway.PaymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if err := s.checkouts.HandleWebhook(r.Context(), event); err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- helpers ---

func validateRule(rule *models.ShippingRule) error {
	switch rule.RuleType {
	case models.RuleTypeFreeShipping, models.RuleTypeSurcharge, models.RuleTypeProductionDays:
	case models.RuleTypeDiscount:
		return errors.New("rule type discount is disabled")
	default:
		return errors.New("unknown rule type")
	}
	if rule.RuleType == models.RuleTypeSurcharge {
		switch rule.DiscountType {
		case models.DiscountPercentage, models.DiscountFixed:
		default:
			return errors.New("surcharge rules need discount_type percentage or fixed")
		}
	}
	if rule.ConditionType == "" {
		rule.ConditionType = models.ConditionAll
	}
	return nil
}

func statusForErr(err error) int {
	switch {
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTransitionNotAllowed):
		return http.StatusConflict
	case errors.Is(err, models.ErrEmptyCart), errors.Is(err, models.ErrUnknownOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
