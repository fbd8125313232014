package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CoverPool/internal/engine"
	"CoverPool/internal/observability"
	"CoverPool/internal/oracle"
	"CoverPool/internal/query"
)

// Faucet funds member wallets so money can enter the system in dev
// deployments. The in-memory transferer implements it; real custody
// backends do not, and the faucet route stays unmounted.
type Faucet interface {
	Mint(member uuid.UUID, amount uint64)
	BalanceOf(member uuid.UUID) uint64
}

// Server exposes the engine's operations, the read models, and the admin
// surface over HTTP/JSON. Mutations take an Idempotency-Key header that
// flows through to the engine's dedup layer.
type Server struct {
	eng        *engine.Engine
	queries    *query.QueryService
	oracle     *oracle.CacheClient
	health     *observability.HealthChecker
	faucet     Faucet
	adminToken string
	log        zerolog.Logger
	metrics    *observability.Metrics
}

type Config struct {
	Engine     *engine.Engine
	Queries    *query.QueryService
	Oracle     *oracle.CacheClient
	Health     *observability.HealthChecker
	Faucet     Faucet // nil outside dev mode
	AdminToken string
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
}

func New(cfg Config) *Server {
	return &Server{
		eng:        cfg.Engine,
		queries:    cfg.Queries,
		oracle:     cfg.Oracle,
		health:     cfg.Health,
		faucet:     cfg.Faucet,
		adminToken: cfg.AdminToken,
		log:        cfg.Logger.With().Str("component", "http").Logger(),
		metrics:    cfg.Metrics,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/healthz", gin.WrapF(s.health.LivenessHandler))
	r.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))

	v1 := r.Group("/v1")
	{
		v1.POST("/policies", s.CreatePolicy)
		v1.GET("/policies/:id", s.GetPolicy)
		v1.POST("/policies/:id/premium", s.PayPremium)
		v1.POST("/policies/:id/cancel", s.CancelPolicy)
		v1.POST("/policies/:id/payout", s.CheckAndPayout)
		v1.POST("/policies/:id/flash-claim", s.FlashClaim)
		v1.POST("/policies/:id/loyalty-reward", s.ClaimLoyaltyReward)
		v1.GET("/policies/:id/payments", s.GetPayments)
		v1.GET("/policies/:id/claims", s.GetClaimHistory)

		v1.GET("/members/:id/policies", s.GetPoliciesByOwner)
		v1.GET("/members/:id/shares", s.GetShares)
		v1.GET("/members/:id/journal", s.GetJournalHistory)

		v1.POST("/claims", s.SubmitClaim)
		v1.GET("/claims", s.ListProposals)
		v1.GET("/claims/:id", s.GetProposal)
		v1.POST("/claims/:id/votes", s.VoteClaim)
		v1.POST("/claims/:id/finalize", s.FinalizeClaim)

		v1.POST("/pool/deposits", s.DepositLiquidity)
		v1.POST("/pool/withdrawals", s.WithdrawLiquidity)
		v1.GET("/pool", s.GetPoolStats)
		v1.GET("/pool/summary", s.GetPoolSummary)

		v1.GET("/oracle/quotes", s.GetQuotes)

		admin := v1.Group("/admin", s.BearerAuth())
		{
			admin.GET("/params", s.GetParams)
			admin.PUT("/params", s.UpdateParam)
			admin.PUT("/treasury", s.SetTreasury)
			admin.POST("/policies/:id/premium-adjust", s.AdjustPremium)
			admin.POST("/sweep", s.SweepExpired)
			admin.GET("/integrity", s.VerifyIntegrity)
			if s.faucet != nil {
				admin.POST("/faucet", s.FaucetMint)
			}
		}
	}

	return r
}

// idempotencyRef extracts the caller's idempotency key. The engine
// rejects empty refs, so handlers pass this through unchecked.
func idempotencyRef(c *gin.Context) string {
	return c.GetHeader("Idempotency-Key")
}
