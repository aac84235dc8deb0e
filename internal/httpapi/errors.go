package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pitodoapp/core/internal/payment"
	"github.com/pitodoapp/core/pkg/reward"
	"github.com/pitodoapp/core/pkg/wallet"
	"go.uber.org/zap"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type errorMapping struct {
	sentinel error
	status   int
	code     string
}

// Domain sentinels mapped to stable wire codes. Anything unmapped is a 500.
var errorMappings = []errorMapping{
	{wallet.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{wallet.ErrWalletNotFound, http.StatusNotFound, "wallet_not_found"},
	{wallet.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
	{wallet.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_idempotency_key"},
	{wallet.ErrLedgerUnavailable, http.StatusServiceUnavailable, "ledger_unavailable"},
	{wallet.ErrInvalidUserID, http.StatusBadRequest, "invalid_user_id"},
	{wallet.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{wallet.ErrInvalidIdempotencyKey, http.StatusBadRequest, "invalid_idempotency_key"},
	{wallet.ErrInvalidMetadataJSON, http.StatusBadRequest, "invalid_metadata"},
	{wallet.ErrInvalidTransactionType, http.StatusBadRequest, "invalid_transaction_type"},
	{wallet.ErrInvalidDirection, http.StatusBadRequest, "invalid_direction"},
	{reward.ErrQuotaExceeded, http.StatusTooManyRequests, "spin_quota_exceeded"},
	{reward.ErrNoRewardsConfigured, http.StatusConflict, "no_rewards_configured"},
	{reward.ErrNumberAlreadyTaken, http.StatusConflict, "number_already_taken"},
	{reward.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{reward.ErrEventNotOpen, http.StatusConflict, "event_not_open"},
	{reward.ErrEventNotClosed, http.StatusConflict, "event_not_closed"},
	{reward.ErrEventNotDrawn, http.StatusConflict, "event_not_drawn"},
	{reward.ErrUnknownEvent, http.StatusNotFound, "event_not_found"},
	{reward.ErrUnknownReward, http.StatusNotFound, "reward_not_found"},
	{reward.ErrUnknownSpin, http.StatusNotFound, "spin_not_found"},
	{reward.ErrSpinNotPending, http.StatusConflict, "spin_not_pending"},
	{reward.ErrInvalidNumber, http.StatusBadRequest, "invalid_number"},
	{reward.ErrInvalidDrawResults, http.StatusBadRequest, "invalid_draw_results"},
	{reward.ErrInvalidRewardType, http.StatusBadRequest, "invalid_reward_type"},
	{reward.ErrInvalidUserID, http.StatusBadRequest, "invalid_user_id"},
	{reward.ErrInvalidIdempotencyKey, http.StatusBadRequest, "invalid_idempotency_key"},
	{payment.ErrInvalidPaymentID, http.StatusBadRequest, "invalid_payment_id"},
	{payment.ErrInvalidDirection, http.StatusBadRequest, "invalid_payment_direction"},
}

// respondError translates a domain error into a stable JSON error payload.
func (server *Server) respondError(ctx *gin.Context, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.sentinel) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, err.Error()))
			return
		}
	}
	server.logger.Error("unhandled domain error", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "internal error"))
}
