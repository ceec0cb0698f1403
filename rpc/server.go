// Package rpc exposes the market over an authenticated REST surface.
package rpc

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/oracle"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Pauser toggles module pause flags.
type Pauser interface {
	SetPaused(module string, paused bool) error
}

// Params wires the server's collaborators.
type Params struct {
	Vault     *vault.Vault
	Engine    *lending.Engine
	Registry  *assets.Registry
	Prices    *oracle.Aggregator
	Pauser    Pauser
	Admin     common.Address
	Auth      *Authenticator
	RateLimit *RateLimiter
	Quotas    map[string]nativecommon.Quota
	Logger    *slog.Logger
}

// Server handles REST traffic for one market.
type Server struct {
	vault    *vault.Vault
	engine   *lending.Engine
	registry *assets.Registry
	prices   *oracle.Aggregator
	pauser   Pauser
	admin    common.Address
	auth     *Authenticator
	limiter  *RateLimiter
	quotas   *quotaKeeper
	logger   *slog.Logger
}

// NewServer builds the REST server.
func NewServer(p Params) *Server {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		vault:    p.Vault,
		engine:   p.Engine,
		registry: p.Registry,
		prices:   p.Prices,
		pauser:   p.Pauser,
		admin:    p.Admin,
		auth:     p.Auth,
		limiter:  p.RateLimit,
		quotas:   newQuotaKeeper(p.Quotas),
		logger:   logger,
	}
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.auth != nil {
			v1.Use(s.auth.Middleware)
		}
		if s.limiter != nil {
			v1.Use(s.limiter.Middleware)
		}

		v1.Route("/vault", func(vr chi.Router) {
			vr.Use(metricsMiddleware("vault"))
			vr.Get("/pool", s.handlePoolStatus)
			vr.Post("/deposit", s.handleDeposit)
			vr.Post("/mint", s.handleMint)
			vr.Post("/withdraw", s.handleWithdraw)
			vr.Post("/redeem", s.handleRedeem)
			vr.Get("/reward", s.handleRewardStatus)
			vr.Post("/reward/claim", s.handleClaimReward)
		})

		v1.Route("/positions", func(pr chi.Router) {
			pr.Use(metricsMiddleware("lending"))
			pr.Post("/", s.handleCreatePosition)
			pr.Get("/{owner}/{id}", s.handleGetPosition)
			pr.Post("/{id}/collateral", s.handleSupplyCollateral)
			pr.Post("/{id}/collateral/withdraw", s.handleWithdrawCollateral)
			pr.Post("/{id}/borrow", s.handleBorrow)
			pr.Post("/{id}/repay", s.handleRepay)
			pr.Post("/{id}/exit", s.handleExitPosition)
		})

		v1.With(metricsMiddleware("lending")).Post("/liquidate", s.handleLiquidate)

		v1.Route("/assets", func(ar chi.Router) {
			ar.Use(metricsMiddleware("assets"))
			ar.Get("/", s.handleListAssets)
			ar.Get("/{address}", s.handleGetAsset)
		})
		v1.With(metricsMiddleware("oracle")).Get("/prices/{address}", s.handleGetPrice)

		v1.Route("/admin", func(adm chi.Router) {
			adm.Use(metricsMiddleware("admin"))
			adm.Post("/pause", s.handlePause)
			adm.Post("/config", s.handleUpdateConfig)
			adm.Post("/assets", s.handleUpsertAsset)
		})
	})

	return otelhttp.NewHandler(r, "lendefi.rpc")
}
