package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/bookings"
	"github.com/Sahil123-FNO/plubming-backend/internal/cache"
	"github.com/Sahil123-FNO/plubming-backend/internal/catalog"
	"github.com/Sahil123-FNO/plubming-backend/internal/config"
	"github.com/Sahil123-FNO/plubming-backend/internal/dashboard"
	"github.com/Sahil123-FNO/plubming-backend/internal/db"
	"github.com/Sahil123-FNO/plubming-backend/internal/middleware"
	"github.com/Sahil123-FNO/plubming-backend/internal/notifications"
	"github.com/Sahil123-FNO/plubming-backend/internal/orders"
	"github.com/Sahil123-FNO/plubming-backend/internal/payments"
	"github.com/Sahil123-FNO/plubming-backend/internal/users"
	"github.com/Sahil123-FNO/plubming-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mongo connected", slog.String("db", cfg.MongoDB))
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		logger.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cacheStore, err := newCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if closer, ok := cacheStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	jwtManager := &auth.Manager{
		Secret:    []byte(cfg.JWTSecret),
		AccessTTL: time.Duration(cfg.AccessTTLMinutes) * time.Minute,
		Issuer:    "plumbing-backend",
	}

	var (
		userMailer    users.Mailer
		bookingMailer bookings.Mailer
	)
	if brevo := notifications.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox); brevo != nil {
		userMailer, bookingMailer = brevo, brevo
		logger.Info("brevo mailer enabled", slog.String("sender", cfg.BrevoSenderEmail), slog.Bool("sandbox", cfg.BrevoSandbox))
	} else {
		logger.Info("brevo mailer disabled")
	}

	val := validation.New()
	images := catalog.NewImageStore(cfg.UploadDir, "/uploads", cfg.ImageMaxWidth)

	userService := users.NewService(users.NewRepository(cols.Users), jwtManager, userMailer, cfg.PublicBaseURL, cfg.Timezone)
	productService := catalog.NewService(catalog.KindProduct, catalog.NewRepository(cols.Products), images, cfg.Timezone)
	serviceService := catalog.NewService(catalog.KindService, catalog.NewRepository(cols.Services), images, cfg.Timezone)
	orderService := orders.NewService(orders.NewRepository(client, cols.Orders), catalog.Lookup{Products: productService, Services: serviceService}, cacheStore, cfg.Timezone)
	bookingService := bookings.NewService(bookings.NewRepository(cols.Bookings), serviceService, bookingMailer, userService, cfg.Timezone)

	gateways := newGateways(cfg)
	for _, g := range gateways {
		logger.Info("payment gateway enabled", slog.String("gateway", g.Name()), slog.Bool("default", g.Name() == cfg.PaymentGateway))
	}
	paymentService := payments.NewService(
		payments.NewRepository(cols.Payments),
		map[payments.SourceKind]payments.Ledger{
			payments.SourceOrder:   payments.OrderLedger{Orders: orderService},
			payments.SourceBooking: payments.BookingLedger{Bookings: bookingService},
		},
		gateways,
		cfg.PaymentGateway,
		cfg.Currency,
		cacheStore,
		cfg.Timezone,
	)

	userHandler := users.NewHandler(userService, val, logger)
	productHandler := catalog.NewHandler(productService, val, cacheStore, cacheTTL, logger)
	serviceHandler := catalog.NewHandler(serviceService, val, cacheStore, cacheTTL, logger)
	orderHandler := orders.NewHandler(orderService, val, cacheStore, cacheTTL, cfg.Timezone, logger)
	bookingHandler := bookings.NewHandler(bookingService, val, cfg.Timezone, logger)
	paymentHandler := payments.NewHandler(paymentService, val, logger)
	dashboardHandler := dashboard.NewHandler(dashboard.Sources{
		Users:    userService,
		Orders:   orderService,
		Products: productService,
		Services: serviceService,
		Bookings: bookingService,
	}, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.FrontendOrigins))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	window := time.Duration(cfg.RateLimitWindowSec) * time.Second
	authLimiter := middleware.NewRateLimiter(cfg.RateLimitAuth, window)
	webhookLimiter := middleware.NewRateLimiter(cfg.RateLimitWebhook, window)

	requireUser := middleware.RequireUser(jwtManager)

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	r.Route("/api", func(api chi.Router) {
		api.With(authLimiter.Middleware).Route("/auth", userHandler.AuthRoutes)

		api.Route("/products", productHandler.PublicRoutes)
		api.Route("/services", func(sr chi.Router) {
			serviceHandler.PublicRoutes(sr)
			sr.Get("/{id}/availability", bookingHandler.Availability)
			sr.With(requireUser).Post("/{id}/ratings", serviceHandler.Rate)
		})

		api.With(webhookLimiter.Middleware).Route("/payments/webhook", paymentHandler.WebhookRoutes)

		api.Group(func(protected chi.Router) {
			protected.Use(requireUser)
			protected.Route("/users", userHandler.Routes)
			protected.Route("/bookings", bookingHandler.Routes)
			protected.Route("/orders", orderHandler.Routes)
			protected.Route("/payments", paymentHandler.Routes)
			protected.With(middleware.RequireAdmin).Get("/orders-stats", orderHandler.Stats)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(requireUser)
			admin.Use(middleware.RequireAdmin)
			userHandler.AdminRoutes(admin)
			bookingHandler.AdminRoutes(admin)
			orderHandler.AdminRoutes(admin)
			admin.Route("/products", productHandler.AdminRoutes)
			admin.Route("/services", serviceHandler.AdminRoutes)
			admin.Get("/dashboard", dashboardHandler.Get)
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.ServerAddr), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
}

// newCache prefers Redis when configured and otherwise keeps an in-process cache,
// which still de-duplicates webhook deliveries for a single instance.
func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	if cfg.RedisURL == "" && cfg.RedisAddr == "" {
		logger.Info("redis not configured, using in-memory cache")
		return cache.NewMemory(), nil
	}

	var redisCache *cache.RedisCache
	if cfg.RedisURL != "" {
		var err error
		if redisCache, err = cache.NewRedisFromURL(cfg.RedisURL); err != nil {
			return nil, err
		}
	} else {
		redisCache = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	if err := redisCache.Ping(ctx); err != nil {
		return nil, err
	}
	if cfg.RedisURL != "" {
		logger.Info("redis connected (url)")
	} else {
		logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))
	}
	return redisCache, nil
}

// newGateways registers every gateway that has credentials. config.Load already
// guarantees the default one is among them.
func newGateways(cfg *config.Config) []payments.Gateway {
	var out []payments.Gateway
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		out = append(out, payments.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookKey))
	}
	if cfg.StripeSecretKey != "" {
		out = append(out, payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookKey))
	}
	return out
}
