// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики
// и собирает HTTP-сервер, цикл майнинга и планировщик в один объект.
package app

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/arx-miner/internal/api"
	"serotonyl.ru/arx-miner/internal/config"
	"serotonyl.ru/arx-miner/internal/db/postgres"
	"serotonyl.ru/arx-miner/internal/features/admin"
	"serotonyl.ru/arx-miner/internal/features/boost"
	"serotonyl.ru/arx-miner/internal/features/economy"
	"serotonyl.ru/arx-miner/internal/features/mining"
	"serotonyl.ru/arx-miner/internal/features/streak"
	"serotonyl.ru/arx-miner/internal/jobs"
	"serotonyl.ru/arx-miner/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	Server    *api.Server
	Mining    *mining.Service
	Watcher   *boost.Watcher
	Scheduler *jobs.Scheduler
	Limiter   *api.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Репозитории ===
	economyRepo := economy.NewRepository(pool)
	streakRepo := streak.NewRepository(pool)
	boostRepo := boost.NewRepository(pool)
	miningRepo := mining.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 3. Сервисы ===
	alerter := notify.New(cfg.TelegramBotToken, cfg.OpsChatID)
	loc := config.Location(cfg.AppTimezone)

	economyService := economy.NewService(economyRepo)
	streakService := streak.NewService(streakRepo, loc, nil)
	adminService := admin.NewService(adminRepo, economyService, alerter, cfg.AdminPasswordHash)

	composer := boost.NewComposer(boost.Params{
		BaseRate:      cfg.MiningBaseRate,
		RateCap:       cfg.MiningRateCap,
		MaxBoostPct:   cfg.MiningMaxBoostPct,
		StreakCapDays: cfg.MiningStreakCapDays,
	})
	watcher := boost.NewWatcher(boostRepo, streakService, composer, cfg.BoostPollInterval, nil)

	miningService := mining.NewService(mining.Deps{
		Store:    miningRepo,
		Ledger:   economyService,
		Failures: adminService,
		Rates:    watcher,
		Streaks:  streakService,
		Limits: mining.Limits{
			BaseRate:   cfg.MiningBaseRate,
			RateCap:    cfg.MiningRateCap,
			MaxSession: cfg.MiningMaxSession,
		},
		Tick: cfg.MiningTickInterval,
	})

	// === 4. HTTP ===
	limiter := api.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := api.NewRouter(api.Config{
		Auth:    api.NewAuthenticator(cfg.AuthJWTSecret),
		Limiter: limiter,
		Mining:  mining.NewHandler(miningService).Routes,
		Account: []func(chi.Router){
			economy.NewHandler(economyService).Routes,
			streak.NewHandler(streakService).Routes,
		},
		Admin: admin.NewHandler(adminService).Routes,
		Ready: pool.Ping,
	})
	server := api.NewServer(cfg.HTTPAddr, router, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)

	// === 5. Планировщик задач ===
	scheduler, err := jobs.NewScheduler(ctx, streakService, miningService, config.Location(cfg.CronTimezone), cfg.CronSweepSpec)
	if err != nil {
		limiter.Close()
		pool.Close()
		return nil, err
	}

	return &App{
		DB:        pool,
		Server:    server,
		Mining:    miningService,
		Watcher:   watcher,
		Scheduler: scheduler,
		Limiter:   limiter,
	}, nil
}

// Run запускает все компоненты и блокируется до отмены ctx
// или падения любого из них.
func (a *App) Run(ctx context.Context) error {
	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Server.Run(ctx) })
	g.Go(func() error {
		a.Mining.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.Watcher.Run(ctx)
		return nil
	})

	// Сессии, истёкшие пока сервис лежал, закрываем сразу, не дожидаясь крона
	g.Go(func() error {
		n, err := a.Mining.SweepExpired(ctx)
		if err != nil {
			log.WithError(err).Warn("Стартовый sweep завершился с ошибками")
		}
		log.WithField("sessions", n).Info("Стартовый sweep выполнен")
		return nil
	})

	return g.Wait()
}

// Close освобождает ресурсы.
func (a *App) Close() {
	a.Limiter.Close()
	a.DB.Close()
}
