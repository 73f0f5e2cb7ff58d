package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"eve-dealfinder/internal/api"
	"eve-dealfinder/internal/auth"
	"eve-dealfinder/internal/config"
	"eve-dealfinder/internal/db"
	"eve-dealfinder/internal/engine"
	"eve-dealfinder/internal/esi"
	"eve-dealfinder/internal/logger"
	"eve-dealfinder/internal/metrics"
)

var version = "dev"

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API instead of a single discovery")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Config", fmt.Sprintf("Failed to load config: %v", err))
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Banner(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("DB", fmt.Sprintf("Failed to open database: %v", err))
		os.Exit(1)
	}
	defer database.Close()

	var store engine.KeyValueStore = database
	switch cfg.KVBackend {
	case config.KVBackendRedis:
		rkv, err := db.NewRedisKV(ctx, db.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Error("Redis", fmt.Sprintf("Failed to connect: %v", err))
			os.Exit(1)
		}
		defer rkv.Close()
		store = rkv
	default:
		if n := database.CleanupKV(ctx, "market-history/", cfg.HistoryTTL); n > 0 {
			logger.Info("DB", fmt.Sprintf("Removed %d stale history entries", n))
		}
	}

	esiClient := esi.NewClient(esi.Options{
		BaseURL:     cfg.ESIBaseURL,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.HTTPTimeout,
		Connections: cfg.ESIConnections,
	})

	sessions := auth.NewSessionStore(database.SqlDB())
	var tokens esi.TokenSource
	if cfg.AccessToken != "" {
		tokens = auth.StaticToken(cfg.AccessToken)
	} else {
		tokens = sessions.TokenFor(cfg.CharacterID)
	}

	character := engine.ESICharacter{Source: esiClient, CharacterID: cfg.CharacterID, Tokens: tokens}
	finder := engine.NewFinder(esiClient, tokens, store, character, engine.FinderOptions{
		Concurrency:      cfg.Concurrency,
		MaxRetries:       cfg.MaxRetries,
		HistoryTTL:       cfg.HistoryTTL,
		OrderHorizonDays: cfg.OrderHorizonDays,
	})

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.NewServer(cfg.MetricsAddr).Run(ctx); err != nil {
				logger.Error("Metrics", "server stopped", logger.Err(err))
			}
		}()
	}

	if !*serve {
		if err := discoverOnce(ctx, finder, database, cfg.CharacterID); err != nil {
			logger.Error("Deals", fmt.Sprintf("Discovery failed: %v", err))
			os.Exit(1)
		}
		return
	}

	srv := api.NewServer(finder, database, esiClient, cfg.CharacterID)
	srv.SetSessions(sessions)
	if cfg.Schedule != "" {
		c, err := srv.Schedule(ctx, cfg.Schedule, database, cfg.RunRetentionDays)
		if err != nil {
			logger.Error("Schedule", fmt.Sprintf("Invalid schedule: %v", err))
			os.Exit(1)
		}
		defer c.Stop()
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Server", "shutdown failed", logger.Err(err))
		}
	}()

	logger.Server(addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server", fmt.Sprintf("Failed: %v", err))
		os.Exit(1)
	}
}

func discoverOnce(ctx context.Context, finder *engine.Finder, database *db.DB, characterID int64) error {
	report, err := finder.FindDealsReport(ctx)
	if err != nil {
		return err
	}
	if _, err := database.InsertRun(characterID, report); err != nil {
		logger.Warn("DB", "failed to record run", logger.Err(err))
	}

	logger.Section("Run")
	logger.Stats("Wallet", isk(report.Wallet))
	logger.Stats("Market types", report.Types)
	logger.Stats("Candidates", report.Candidates)
	logger.Stats("Already listed", report.Duplicates)
	logger.Stats("History (mem/db/esi)", fmt.Sprintf("%d/%d/%d", report.History.Memory, report.History.Store, report.History.Fetched))
	logger.Stats("Duration", report.Duration.Round(time.Millisecond))

	logger.Section("Deals")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Type\tUnits\tBuy\tSell\tFees\tProfit\t")
	for _, d := range report.Deals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			d.Type.TypeName,
			humanize.Comma(int64(d.Volume)),
			isk(d.BuyPrice), isk(d.SellPrice), isk(d.Fees), isk(d.Profit()))
	}
	return tw.Flush()
}

func isk(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
