package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/LendefiMarkets/lendefi-markets-polygon/config"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/oracle"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/observability/logging"
	"github.com/LendefiMarkets/lendefi-markets-polygon/observability/metrics"
	telemetry "github.com/LendefiMarkets/lendefi-markets-polygon/observability/otel"
	"github.com/LendefiMarkets/lendefi-markets-polygon/rpc"
	"github.com/LendefiMarkets/lendefi-markets-polygon/state"
	"github.com/LendefiMarkets/lendefi-markets-polygon/storage"
)

const serviceName = "lendefid"

// moduleAccount derives a deterministic custody address for a protocol role
// on this network.
func moduleAccount(network, role string) common.Address {
	hash := ethcrypto.Keccak256([]byte("lendefi/" + network + "/" + role))
	return common.BytesToAddress(hash[12:])
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "lendefi.toml", "path to daemon config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDEFI_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err.Error())
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err := config.Validate(cfg); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: serviceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("init telemetry", "error", err.Error())
			os.Exit(1)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		logger.Error("restore state", "error", err.Error())
		os.Exit(1)
	}
	ledger := state.NewTokenLedger(manager)

	admin, _ := cfg.AdminAddress()
	treasury, _ := cfg.TreasuryAddress()
	baseAsset, _ := cfg.BaseAssetAddress()
	govToken, _ := cfg.GovTokenAddress()

	registry := assets.NewRegistry(admin)
	if cfg.AssetGenesisFile != "" {
		if err := registry.LoadGenesis(admin, cfg.AssetGenesisFile); err != nil {
			logger.Error("load asset genesis", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("asset genesis loaded", "component", "assets", "count", registry.Count())
	}

	aggregator := oracle.NewAggregator(registry, cfg.Oracle.Runtime())

	protocolCfg, err := cfg.Protocol.Runtime()
	if err != nil {
		logger.Error("invalid protocol config", "error", err.Error())
		os.Exit(1)
	}

	vaultAccount := moduleAccount(cfg.NetworkName, "vault")
	ledgerAccount := moduleAccount(cfg.NetworkName, "ledger")

	marketVault, err := vault.New(vault.Params{
		State:    manager,
		Token:    ledger.Bind(baseAsset),
		Pauses:   manager,
		Address:  vaultAccount,
		Ledger:   ledgerAccount,
		Treasury: treasury,
		Admin:    admin,
		Height:   manager.Height,
		Config:   protocolCfg,
	})
	if err != nil {
		logger.Error("construct vault", "error", err.Error())
		os.Exit(1)
	}

	engine, err := lending.New(lending.Params{
		State:        manager,
		Registry:     registry,
		Oracle:       aggregator,
		Vault:        marketVault,
		Tokens:       ledger,
		GovToken:     ledger.Bind(govToken),
		Pauses:       manager,
		Self:         ledgerAccount,
		BaseDecimals: cfg.BaseDecimals,
		Height:       manager.Height,
	})
	if err != nil {
		logger.Error("construct position ledger", "error", err.Error())
		os.Exit(1)
	}

	for module, paused := range map[string]bool{
		"vault":   cfg.Pauses.Vault,
		"lending": cfg.Pauses.Lending,
		"oracle":  cfg.Pauses.Oracle,
	} {
		if paused {
			if err := manager.SetPaused(module, true); err != nil {
				logger.Error("apply boot pause", "module", module, "error", err.Error())
				os.Exit(1)
			}
			logger.Warn("module paused at boot", "module", module)
		}
	}

	secret, err := cfg.JWTSecret()
	if err != nil {
		logger.Error("resolve jwt secret", "error", err.Error())
		os.Exit(1)
	}

	server := rpc.NewServer(rpc.Params{
		Vault:     marketVault,
		Engine:    engine,
		Registry:  registry,
		Prices:    aggregator,
		Pauser:    manager,
		Admin:     admin,
		Auth:      rpc.NewAuthenticator(secret, cfg.NetworkName, logger),
		RateLimit: rpc.NewRateLimiter(600, 30),
		Quotas: map[string]nativecommon.Quota{
			"vault":   cfg.Quotas.Vault.Runtime(),
			"lending": cfg.Quotas.Lending.Runtime(),
			"oracle":  cfg.Quotas.Oracle.Runtime(),
		},
		Logger: logger,
	})

	go runHeightClock(ctx, manager, logger)
	go publishMarketMetrics(ctx, marketVault)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "component", "rpc", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("forced shutdown", "error", err.Error())
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", "error", err.Error())
			os.Exit(1)
		}
	}
}

// runHeightClock advances the market's ordering unit once per second. Every
// mutating operation stamps the height it executed in, which backs the
// same-unit repeat guard and interest accrual.
func runHeightClock(ctx context.Context, manager *state.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := manager.SetHeight(manager.Height() + 1); err != nil {
				logger.Error("advance height", "error", err.Error())
			}
		}
	}
}

// publishMarketMetrics refreshes the pool gauges from vault state.
func publishMarketMetrics(ctx context.Context, marketVault *vault.Vault) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, err := marketVault.TotalAssets()
			if err != nil {
				continue
			}
			available, err := marketVault.AvailableLiquidity()
			if err != nil {
				continue
			}
			utilization, err := marketVault.Utilization()
			if err != nil {
				continue
			}
			borrowed := new(big.Int).Sub(total, available)
			metrics.Market().SetPoolState(toFloat(total), toFloat(borrowed), toFloat(utilization))

			supplyRate, err := marketVault.SupplyRate(assets.TierCrossA)
			if err != nil {
				continue
			}
			borrowRate, err := marketVault.BorrowRate(assets.TierCrossA)
			if err != nil {
				continue
			}
			metrics.Market().SetRates(toFloat(supplyRate), assets.TierCrossA.String(), toFloat(borrowRate))
		}
	}
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
