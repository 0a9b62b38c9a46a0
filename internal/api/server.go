// Package api serves the storefront's HTTP surface: the payment webhook,
// checkout, the admin fulfillment actions and the live order event streams.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cookiebox/internal/alerts"
	"cookiebox/internal/auth"
	"cookiebox/internal/config"
	"cookiebox/internal/courier"
	"cookiebox/internal/courier/biteship"
	"cookiebox/internal/courier/lalamove"
	"cookiebox/internal/events"
	"cookiebox/internal/fulfillment"
	"cookiebox/internal/model"
	"cookiebox/internal/payment"
	"cookiebox/internal/store"
)

// PaymentLinks opens a hosted payment page for a new order.
type PaymentLinks interface {
	CreateTransaction(ctx context.Context, o *model.Order) (payment.SnapTransaction, error)
}

type Server struct {
	Store    store.Store
	Orders   *fulfillment.Service
	Payments PaymentLinks
	Auth     *auth.Verifier
	Broker   events.Broker
	Log      *slog.Logger
	Limiter  *ipLimiter

	validate *validator.Validate
	now      func() time.Time
	closers  []io.Closer
	// streamsDone ends open SSE and websocket streams on shutdown.
	streamsDone <-chan struct{}
}

// NewServer wires the service from configuration. Without DatabaseURL the
// in-memory store is used; without RedisURL events stay in process.
// Cancelling ctx closes open event streams; other requests run to completion.
func NewServer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{Log: log, streamsDone: ctx.Done()}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Warn("DATABASE_URL not set; using in-memory order store")
		s.Store = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pg)
		if cfg.DBMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s.Store = pg
	}

	s.Broker = events.NewBroker()
	if cfg.RedisURL != "" {
		rb, err := events.NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable; using in-process events", "err", err)
		} else {
			s.closers = append(s.closers, rb)
			s.Broker = rb
		}
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	pay := payment.NewClient(cfg.Midtrans, hc)
	s.Payments = pay
	s.Auth = auth.NewVerifier(cfg.Admin)
	s.Orders = fulfillment.New(s.Store,
		[]courier.Dispatcher{biteship.New(cfg.Biteship, hc), lalamove.New(cfg.Lalamove, hc)},
		fulfillment.Options{
			ServerKey:  cfg.Midtrans.ServerKey,
			ClaimLease: cfg.ClaimLease,
			Log:        log,
			Broker:     s.Broker,
			Alerts:     alerts.NewNotifier(cfg.Alerts.WebhookURL, cfg.Alerts.Secret, log),
			Payments:   pay,
		})
	s.Limiter = newIPLimiter(cfg.RateRPS, cfg.RateBurst)
	return s, nil
}

// Close releases the database pool and the Redis connection, if any.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) validator() *validator.Validate {
	if s.validate == nil {
		s.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return s.validate
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Routes builds the request multiplexer with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Payment provider callbacks
	mux.HandleFunc("POST /v1/webhooks/midtrans", s.MidtransWebhookHandler)

	// Storefront
	mux.Handle("POST /v1/checkout", s.rateLimit(http.HandlerFunc(s.CheckoutHandler)))

	// Admin
	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.rateLimit(s.requireAdmin(h)))
	}
	admin("POST /v1/admin/shipments/create", s.CreateShipmentHandler)
	admin("POST /v1/admin/shipments/retry", s.RetryShipmentHandler)
	admin("POST /v1/admin/orders/mark-paid", s.MarkPaidHandler)
	admin("POST /v1/admin/orders/mark-fulfilled", s.MarkFulfilledHandler)
	admin("POST /v1/admin/orders/reconcile", s.ReconcileHandler)
	admin("GET /v1/admin/orders", s.ListOrdersHandler)
	admin("GET /v1/admin/orders/{id}", s.GetOrderHandler)
	admin("GET /v1/admin/events/stream", s.EventStreamHandler)
	admin("GET /v1/admin/events/ws", s.EventSocketHandler)

	// Health and diagnostics
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", metricsHandler())
	mux.Handle("GET /debug/info", s.requireAdmin(s.DebugJSON))
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	return s.recoverMiddleware(s.logMiddleware(mux))
}
