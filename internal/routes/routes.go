package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/cardledger/internal/auth"
	"github.com/congo-pay/cardledger/internal/cardnumber"
	"github.com/congo-pay/cardledger/internal/cards"
	"github.com/congo-pay/cardledger/internal/config"
	"github.com/congo-pay/cardledger/internal/identity"
	"github.com/congo-pay/cardledger/internal/ledger"
	"github.com/congo-pay/cardledger/internal/metrics"
	"github.com/congo-pay/cardledger/internal/middleware"
	"github.com/congo-pay/cardledger/internal/notification"
	"github.com/congo-pay/cardledger/internal/transfers"
	"github.com/congo-pay/cardledger/internal/txn"
)

const loginAttemptsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory stores are used and
// idempotency and login rate limiting are off.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

type backends struct {
	tx     txn.Manager
	cards  cards.Repository
	ledger ledger.Ledger
	users  identity.Repository
}

func newBackends(d Deps) backends {
	if d.DB != nil {
		return backends{
			tx:     txn.NewPostgresManager(d.DB, d.Cfg.LockTimeout),
			cards:  cards.NewPostgresRepository(d.DB),
			ledger: ledger.NewPostgresLedger(d.DB),
			users:  identity.NewPostgresRepository(d.DB),
		}
	}
	return backends{
		tx:     txn.NewMemoryManager(d.Cfg.LockTimeout),
		cards:  cards.NewMemoryRepository(),
		ledger: ledger.NewInMemory(),
		users:  identity.NewMemoryRepository(),
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(metrics.HTTP())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Services and handlers
	b := newBackends(d)
	issuer, err := cardnumber.NewIssuer(d.Cfg.CardNumberPrefix, []byte(d.Cfg.CardTokenKey))
	if err != nil {
		return fmt.Errorf("card number issuer: %w", err)
	}
	identitySvc := identity.NewService(b.users, d.Logger)
	authSvc := auth.NewService(d.Cfg, b.users)
	cardSvc := cards.NewService(cards.Deps{
		Repo:     b.cards,
		Tx:       b.tx,
		Owners:   identitySvc,
		History:  b.ledger,
		Issuer:   issuer,
		Notifier: d.Notifier,
		Logger:   d.Logger,
	})
	transferSvc := transfers.NewService(b.cards, b.ledger, b.tx, d.Notifier, d.Logger)

	if d.Cfg.AdminUsername != "" && d.Cfg.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := identitySvc.EnsureAdmin(ctx, d.Cfg.AdminUsername, d.Cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	jwtmw := middleware.JWTAuth(authSvc)
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), middleware.LoginRateLimit(d.Cache, loginAttemptsPerMinute, d.Logger), jwtmw)

	// Protected routes
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	cardHandler := cards.NewHandler(cardSvc)
	transferHandler := transfers.NewHandler(transferSvc)

	user := api.Group("/user", jwtmw, middleware.RequireRole(string(identity.RoleUser)))
	RegisterUserCardRoutes(user, cardHandler, transferHandler)
	RegisterTransferRoutes(user, transferHandler, idempotency)

	admin := api.Group("/admin", jwtmw, middleware.RequireRole(string(identity.RoleAdmin)))
	RegisterAdminRoutes(admin, identity.NewHandler(identitySvc), cardHandler, transferHandler)

	return nil
}
