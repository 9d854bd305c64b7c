package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/fundvault/internal/audit"
	"github.com/terminal-bench/fundvault/internal/auth"
	"github.com/terminal-bench/fundvault/internal/config"
	"github.com/terminal-bench/fundvault/internal/exporter"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/gateway"
	"github.com/terminal-bench/fundvault/internal/policy"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/internal/router"
	"github.com/terminal-bench/fundvault/internal/token"
	"github.com/terminal-bench/fundvault/internal/vault"
	"github.com/terminal-bench/fundvault/pkg/messaging"
)

func main() {
	configPath := flag.String("config", os.Getenv("FUNDVAULT_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	exporter.Init()

	bus, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSUrl,
		Name:           "fundvault",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid redis URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	adminAddr := fund.Address(cfg.AdminAddress)
	routerAddr := fund.Address(cfg.RouterAddress)
	vaultAddr := fund.Address(cfg.VaultAddress)

	reg := roles.NewRegistry(adminAddr)
	compliance := policy.NewManualBlacklist(reg)

	asset := token.NewService(cfg.AssetName, adminAddr, token.WithPublisher(bus))

	shareOpts := []token.Option{token.WithPublisher(bus)}
	if cfg.ShareTaxPctA > 0 || cfg.ShareTaxPctB > 0 {
		tax, err := policy.NewVanillaShareTax(reg,
			fund.Address(cfg.OnboardingCollector), fund.Address(cfg.WithdrawalCollector),
			decimal.NewFromInt(cfg.ShareTaxPctA), decimal.NewFromInt(cfg.ShareTaxPctB))
		if err != nil {
			log.Fatalf("Failed to build share tax policy: %v", err)
		}
		// pipeline components never pay the levy
		for _, addr := range []fund.Address{routerAddr, vaultAddr} {
			if err := tax.UpdateExempt(adminAddr, addr, true); err != nil {
				log.Fatalf("Failed to exempt %s: %v", addr, err)
			}
		}
		shareOpts = append(shareOpts, token.WithShareTax(tax))
	}
	shares := token.NewService(cfg.ShareName, vaultAddr, shareOpts...)

	v, err := vault.New(vault.Config{
		Address:             vaultAddr,
		Roles:               reg,
		Asset:               asset,
		Shares:              shares,
		OnboardingFeePct:    decimal.NewFromInt(cfg.OnboardingFeePct),
		WithdrawalFeePct:    decimal.NewFromInt(cfg.WithdrawalFeePct),
		OnboardingCollector: fund.Address(cfg.OnboardingCollector),
		WithdrawalCollector: fund.Address(cfg.WithdrawalCollector),
		Delegate:            fund.Address(cfg.Delegate),
		Competition:         fund.Address(cfg.Competition),
		Compliance:          compliance,
		Bus:                 bus,
	})
	if err != nil {
		log.Fatalf("Failed to build vault: %v", err)
	}

	fundRouter, err := router.New(routerAddr, reg, asset, shares)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}
	if err := v.UpdateRouter(adminAddr, fundRouter); err != nil {
		log.Fatalf("Failed to wire audit sink: %v", err)
	}
	if err := fundRouter.AuthorizeVault(adminAddr, v); err != nil {
		log.Fatalf("Failed to authorize vault: %v", err)
	}

	if cfg.PostgresDSN != "" {
		archive, err := audit.OpenArchive(context.Background(), cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to open audit archive: %v", err)
		}
		defer archive.Close()
		if err := startArchiveFeed(bus, archive); err != nil {
			log.Fatalf("Failed to start archive feed: %v", err)
		}
	}

	authSvc := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	gw := gateway.New(gateway.Config{
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}, authSvc, reg, fundRouter, map[fund.Address]*vault.Vault{vaultAddr: v}, bus, rdb)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      gw.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if err := bus.Subscribe("fund.>", gw.RelayEvent); err != nil {
		log.Fatalf("Failed to subscribe gateway relay: %v", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		log.Printf("fundvault listening on port %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-ctx.Done():
		}

		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Service error: %v", err)
	}
	log.Println("fundvault stopped")
}

// startArchiveFeed copies request and settlement events into Postgres.
func startArchiveFeed(bus *messaging.Client, archive *audit.Archive) error {
	requestSubjects := []string{
		messaging.EventTypeDepositRequested,
		messaging.EventTypeWithdrawRequested,
	}
	processedSubjects := []string{
		messaging.EventTypeDepositCompleted,
		messaging.EventTypeWithdrawProcessed,
	}

	for _, subject := range requestSubjects {
		subject := subject
		err := bus.QueueSubscribe(subject, "audit-archive", func(msg *natsgo.Msg) {
			saveRequest(archive, subject, msg.Data)
		})
		if err != nil {
			return err
		}
	}
	for _, subject := range processedSubjects {
		subject := subject
		err := bus.QueueSubscribe(subject, "audit-archive", func(msg *natsgo.Msg) {
			saveProcessed(archive, subject, msg.Data)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func saveRequest(archive *audit.Archive, subject string, payload []byte) {
	event, data, err := decodeEvent[messaging.RequestEvent](payload)
	if err != nil {
		log.Printf("Archive: dropping malformed %s event: %v", subject, err)
		return
	}
	reqType := fund.RequestDeposit
	if subject == messaging.EventTypeWithdrawRequested {
		reqType = fund.RequestWithdraw
	}
	amount, err := decimal.NewFromString(data.Amount)
	if err != nil {
		log.Printf("Archive: bad amount in %s event: %v", subject, err)
		return
	}
	rec := audit.RequestRecord{
		ID:        event.ID,
		Vault:     fund.Address(data.Vault),
		Type:      reqType,
		Sender:    fund.Address(data.Sender),
		Receiver:  fund.Address(data.Receiver),
		Timestamp: event.Timestamp,
		Amount:    amount,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := archive.SaveRequest(ctx, rec); err != nil {
		log.Printf("Archive: failed to save request record: %v", err)
	}
}

func saveProcessed(archive *audit.Archive, subject string, payload []byte) {
	event, data, err := decodeEvent[messaging.SettledEvent](payload)
	if err != nil {
		log.Printf("Archive: dropping malformed %s event: %v", subject, err)
		return
	}
	reqType := fund.RequestDeposit
	if subject == messaging.EventTypeWithdrawProcessed {
		reqType = fund.RequestWithdraw
	}
	amountIn, err1 := decimal.NewFromString(data.AmountIn)
	amountOut, err2 := decimal.NewFromString(data.AmountOut)
	feesPaid, err3 := decimal.NewFromString(data.FeesPaid)
	if err1 != nil || err2 != nil || err3 != nil {
		log.Printf("Archive: bad amounts in %s event", subject)
		return
	}
	rec := audit.ProcessedRecord{
		ID:        event.ID,
		Vault:     fund.Address(data.Vault),
		Type:      reqType,
		Receiver:  fund.Address(data.Receiver),
		Timestamp: event.Timestamp,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		FeesPaid:  feesPaid,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := archive.SaveProcessed(ctx, rec); err != nil {
		log.Printf("Archive: failed to save processed record: %v", err)
	}
}

func decodeEvent[T any](payload []byte) (*messaging.Event, *T, error) {
	var event messaging.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, nil, err
	}
	data, err := messaging.ParseEventData[T](&event)
	if err != nil {
		return nil, nil, err
	}
	return &event, data, nil
}
