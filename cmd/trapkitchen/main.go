package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trapkitchen/internal/config"
	"trapkitchen/internal/database"
	"trapkitchen/internal/handler"
	"trapkitchen/internal/mw"
	"trapkitchen/internal/notify"
	"trapkitchen/internal/processor"
	"trapkitchen/internal/service"
	"trapkitchen/internal/store"
)

func main() {
	cfg := config.New()

	db, err := database.NewDB(cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(context.Background(), db)

	if err := database.InitSchema(db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	st := store.NewPostgres(db)
	processorClient := processor.NewHTTPClient(cfg.ProcessorAddress, cfg.ProcessorAPIKey)
	dispatcher := notify.NewDispatcher(notify.Log{}, 64)

	// Services
	authSvc := service.NewAuthService(st)
	orderSvc := service.NewOrderService(st, dispatcher)
	paymentSvc := service.NewPaymentService(st, processorClient)
	reconcileSvc := service.NewReconcileService(st)
	couponSvc := service.NewCouponService(st, cfg.CouponDiscount)
	reviewSvc := service.NewReviewService(st, couponSvc, cfg.ReviewWindowDays)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/auth/register", handler.RegisterHandler(authSvc, cfg.JWTSecret))
	r.Post("/api/auth/login", handler.LoginHandler(authSvc, cfg.JWTSecret))
	r.Get("/api/dishes", handler.ListDishesHandler(st))
	r.Get("/api/reviews", handler.ListApprovedReviewsHandler(reviewSvc))
	r.Post("/api/webhooks/processor", handler.WebhookHandler(reconcileSvc))

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/api/orders", handler.CreateOrderHandler(orderSvc))
		r.Get("/api/orders", handler.ListOrdersHandler(orderSvc))
		r.Get("/api/orders/{id}", handler.GetOrderHandler(orderSvc))

		r.Post("/api/payments/intent", handler.CreateIntentHandler(paymentSvc))
		r.Post("/api/payments/cash", handler.CreateCashPaymentHandler(paymentSvc))
		r.Get("/api/payments/{id}", handler.PaymentStatusHandler(paymentSvc))

		r.Get("/api/coupons", handler.ListCouponsHandler(couponSvc))
		r.Post("/api/coupons/validate", handler.ValidateCouponHandler(couponSvc))
		r.Post("/api/coupons/apply", handler.ApplyCouponHandler(couponSvc))

		r.Get("/api/reviews/eligible", handler.EligibleOrdersHandler(reviewSvc))
		r.Get("/api/reviews/mine", handler.ListMyReviewsHandler(reviewSvc))
		r.Post("/api/reviews", handler.CreateReviewHandler(reviewSvc))

		// Staff routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireStaff)

			r.Put("/api/orders/{id}/status", handler.SetOrderStatusHandler(orderSvc))
			r.Post("/api/orders/archive", handler.ArchiveOrdersHandler(orderSvc))
			r.Post("/api/orders/reset-numbers", handler.ResetOrderNumbersHandler(orderSvc))
			r.Post("/api/payments/{id}/confirm-cash", handler.ConfirmCashHandler(paymentSvc))
			r.Post("/api/payments/{id}/refund", handler.RefundHandler(paymentSvc))
			r.Get("/api/reviews/pending", handler.ListPendingReviewsHandler(reviewSvc))
			r.Post("/api/reviews/{id}/approve", handler.ApproveReviewHandler(reviewSvc))
			r.Delete("/api/reviews/{id}", handler.RejectReviewHandler(reviewSvc))
		})
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop dispatcher
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
