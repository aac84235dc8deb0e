// Package httpapi exposes the wallet ledger and reward engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pitodoapp/core/internal/payment"
	"github.com/pitodoapp/core/pkg/reward"
	"github.com/pitodoapp/core/pkg/wallet"
	"go.uber.org/zap"
)

// Server holds the façade's dependencies.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	wallets  *wallet.Service
	rewards  *reward.Service
	payments *payment.Service
}

// NewServer wires a Server; the payments service is optional.
func NewServer(cfg Config, logger *zap.Logger, wallets *wallet.Service, rewards *reward.Service, payments *payment.Service) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, errors.New("httpapi: logger dependency is nil")
	}
	if wallets == nil {
		return nil, errors.New("httpapi: wallet service dependency is nil")
	}
	if rewards == nil {
		return nil, errors.New("httpapi: reward service dependency is nil")
	}
	return &Server{cfg: cfg, logger: logger, wallets: wallets, rewards: rewards, payments: payments}, nil
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(sessionMiddleware([]byte(server.cfg.SessionSigningKey), server.cfg.SessionIssuer))

	api.GET("/wallet", server.handleWallet)
	api.GET("/wallet/transactions", server.handleListTransactions)
	api.POST("/wallet/transfer", server.handleTransfer)

	api.GET("/rewards", server.handleActiveRewards)
	api.POST("/spin", server.handleSpin)
	api.POST("/spins/:spin_id/claim", server.handleClaim)

	api.GET("/lottery/events/:event_id", server.handleGetEvent)
	api.POST("/lottery/events/:event_id/register", server.handleRegister)
	api.GET("/lottery/events/:event_id/winners", server.handleWinners)

	if server.payments != nil {
		api.POST("/payments/:payment_id/approve", server.handlePaymentApprove)
		api.POST("/payments/:payment_id/complete", server.handlePaymentComplete)
	}

	admin := api.Group("/admin")
	admin.Use(requireAdmin())
	admin.POST("/wallet/credit", server.handleAdminCredit)
	admin.POST("/wallet/debit", server.handleAdminDebit)
	admin.POST("/wallet/hold", server.handleAdminHold)
	admin.POST("/wallet/release", server.handleAdminRelease)
	admin.POST("/rewards", server.handleAdminUpsertReward)
	admin.POST("/rewards/:reward_id/active", server.handleAdminSetRewardActive)
	admin.POST("/lottery/events", server.handleAdminCreateEvent)
	admin.POST("/lottery/events/:event_id/open", server.handleAdminOpenEvent)
	admin.POST("/lottery/events/:event_id/close", server.handleAdminCloseEvent)
	admin.POST("/lottery/events/:event_id/draw", server.handleAdminDraw)

	return router
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("httpapi listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
