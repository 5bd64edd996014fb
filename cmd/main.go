package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"taxi-service/internal/bookings"
	"taxi-service/internal/config"
	"taxi-service/internal/fare"
	"taxi-service/internal/notify"
	"taxi-service/internal/outbox"
	"taxi-service/internal/pricing"
	"taxi-service/internal/staff"
	"taxi-service/internal/tracking"
	"taxi-service/internal/voucher"
	"taxi-service/migrations"
	"taxi-service/pkg/db"
	"taxi-service/pkg/jwt"
	"taxi-service/pkg/kafka"
	"taxi-service/pkg/metrics"
	rredis "taxi-service/pkg/redis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "optional YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Config + JWT secret ──
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := jwt.Init(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL); err != nil {
		log.Fatal(err)
	}
	fareCfg, err := cfg.Fare.FareConfig()
	if err != nil {
		log.Fatal(err)
	}

	// ── 2. PostgreSQL ──
	database, err := db.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.ConnectAttempts)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := database.RunMigrations(ctx, migrations.FS); err != nil {
		log.Fatal("migrations failed:", err)
	}
	txm := database.TxManager()

	// ── 3. Redis ──
	redisClient, err := rredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	// ── 4. Kafka ──
	kafkaClient := kafka.NewClient(cfg.Kafka.Brokers)
	defer kafkaClient.Close()

	if err := kafkaClient.EnsureTopics(ctx, kafka.TopicBookingEvents); err != nil {
		log.Fatal(err)
	}

	// ── 5. Services ──
	estimator, err := fare.NewEstimator(fareCfg)
	if err != nil {
		log.Fatal(err)
	}
	routes := pricing.NewCachedProvider(
		pricing.NewOSRMClient(cfg.Routing.OSRMURL, cfg.Routing.Timeout),
		redisClient,
		cfg.Routing.CacheTTL,
	)
	pricingSvc := pricing.NewService(estimator, routes)

	outboxRepo := outbox.NewRepository(txm)
	bookingStore := bookings.NewPostgresStore(txm, outboxRepo)
	bookingSvc := bookings.NewService(bookingStore, pricingSvc, estimator.Currency(), estimator.Location())

	staffSvc := staff.NewService(staff.NewPostgresRepository(txm))
	if err := staffSvc.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatal(err)
	}

	vouchers := voucher.Renderer{Company: cfg.App.Name, Phone: cfg.App.Phone, Loc: estimator.Location()}

	// ── 6. Notifications + live feed ──
	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Mail.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From, cfg.App.Name)
	}
	notifier := notify.NewNotifier(mailer, cfg.App.Name, cfg.App.Phone, cfg.App.PublicURL, estimator.Location())
	wsHub := tracking.NewHub()
	poller := outbox.NewPoller(outboxRepo, kafkaClient, kafka.TopicBookingEvents, cfg.Outbox.Interval, cfg.Outbox.BatchSize)

	// ── 7. HTTP router ──
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(jwt.OptionalAuth)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := redisClient.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","service":"taxi-service"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","service":"taxi-service"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	bookingHandler := bookings.NewHandler(bookingSvc, cfg.App.Phone, vouchers.Render)
	r.Mount("/estimates", pricing.NewHandler(pricingSvc, cfg.App.Phone).Routes())
	r.With(redisClient.Idempotency(cfg.HTTP.IdempotencyTTL)).Mount("/bookings", bookingHandler.PublicRoutes())
	r.Mount("/admin/bookings", bookingHandler.AdminRoutes())
	r.Mount("/staff", staff.NewHandler(staffSvc).Routes())
	r.Mount("/ws", wsHub.Routes())

	// ── 8. Start everything ──
	srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: r}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("taxi-service listening on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		return kafkaClient.Consume(gctx, kafka.TopicBookingEvents, kafka.GroupNotifier, notifier.Handle)
	})
	g.Go(func() error {
		return kafkaClient.Consume(gctx, kafka.TopicBookingEvents, kafka.GroupLiveFeed, wsHub.Handle)
	})

	// ── 9. Graceful shutdown ──
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("exit: %v", err)
		os.Exit(1)
	}
}
