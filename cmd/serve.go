package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"restaurant-storefront/internal/booking"
	"restaurant-storefront/internal/cart"
	"restaurant-storefront/internal/catalog"
	"restaurant-storefront/internal/checkout"
	"restaurant-storefront/internal/config"
	"restaurant-storefront/internal/database"
	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
	"restaurant-storefront/internal/messaging"
	"restaurant-storefront/internal/payment"
	"restaurant-storefront/internal/server"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront API and reservation hold sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			return serve(cfg, migrateUp)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}

func serve(cfg config.Config, migrateUp bool) error {
	log := logger.New("storefront")
	requestID := logger.GenerateRequestID()

	log.Info("service_started", requestID, "Starting storefront service", map[string]interface{}{
		"listen_addr": cfg.ListenAddr,
		"environment": cfg.Environment,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	erpClient := erp.New(cfg.ERP, log)
	reader := catalog.NewReader(erpClient, log)
	payments := payment.NewResolver(erpClient, cfg.Production(), log)

	// Cart state is session-keyed and externally owned; Postgres-backed when
	// configured, in-memory otherwise.
	var cartStore cart.Store = cart.NewMemoryStore(cfg.CartTTL)
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		log.Info("db_connected", requestID, "Connected to PostgreSQL database", nil)

		if migrateUp {
			if err := db.RunMigrations(ctx, "migrations"); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pgStore := cart.NewPostgresStore(db, cfg.CartTTL)
		cartStore = pgStore
		go purgeExpiredCarts(ctx, pgStore, cfg.SweepInterval, log)
	}

	var events *messaging.Publisher
	if cfg.RabbitMQURL != "" {
		conn, err := messaging.New(cfg.RabbitMQURL, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()

		log.Info("rabbitmq_connected", requestID, "Connected to RabbitMQ", nil)
		events = messaging.NewPublisher(conn, log)
	}

	carts := cart.NewService(cartStore, reader, log)

	var checkoutEvents checkout.Events
	var bookingEvents booking.Events
	if events != nil {
		checkoutEvents = events
		bookingEvents = events
	}

	co := checkout.NewOrchestrator(erpClient, carts, reader, payments, checkoutEvents, log)
	bookings := booking.NewOrchestrator(erpClient, reader, bookingEvents, cfg.HoldTTL, log)

	sweeper := &booking.Sweeper{
		Bookings: bookings,
		Interval: cfg.SweepInterval,
		Log:      log,
	}
	go func() { _ = sweeper.Run(ctx) }()

	sessions := server.NewSessionManager(cfg.CookieHashKey, cfg.CookieBlockKey)
	handler := server.NewHandler(carts, co, bookings, reader, erpClient, sessions, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server_listening", requestID, fmt.Sprintf("Storefront API listening on %s", cfg.ListenAddr), nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", requestID, "HTTP server failed", err, nil)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("graceful_shutdown", requestID, "Received shutdown signal", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("service_stopped", requestID, "Service stopped gracefully", nil)
	return nil
}

// purgeExpiredCarts drops abandoned carts on the same cadence as the
// reservation hold sweeper.
func purgeExpiredCarts(ctx context.Context, store *cart.PostgresStore, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := store.DeleteExpired(ctx); err != nil {
				log.Error("cart_purge_failed", "", "Failed to delete expired carts", err, nil)
			}
		}
	}
}
