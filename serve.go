package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/handlers"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/middleware"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the booking HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log.LogProcess("STARTUP", "Studio booking API starting up...")

			cfg := loadConfig(true)
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			router := setupRouter(a)
			srv := &http.Server{
				Addr:         cfg.Server.Port,
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.LogProcess("SERVER", "Starting HTTP server on port "+cfg.Server.Port)
				log.Info("STARTUP", "Health check available at: http://localhost"+cfg.Server.Port+"/health")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
			}

			log.Info("SHUTDOWN", "Studio booking API shutdown completed")
			return nil
		},
	}
}

func setupRouter(a *app) *gin.Engine {
	if a.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(log, 20, 40))

	bookings := handlers.NewBookingHandler(a.bookings, log)
	webhooks := handlers.NewWebhookHandler(a.producer, a.cfg.Stripe.WebhookSecret, log)

	router.GET("/health", handlers.NewHealthHandler(a.store).Health)

	booking := router.Group("/booking/:studio")
	{
		booking.POST("/create-payment-intent", bookings.CreatePaymentIntent)
		booking.POST("/confirm-payment", bookings.ConfirmPayment)
		booking.GET("/payments/:paymentId", bookings.GetPaymentStatus)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/studios/:studio/reconciliation", bookings.Reconciliation)
		v1.POST("/stripe/webhook", webhooks.HandleStripeWebhook)
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
