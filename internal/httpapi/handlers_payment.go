package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pitodoapp/core/internal/payment"
)

type paymentRequest struct {
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
}

func (server *Server) handlePaymentApprove(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request paymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	err := server.payments.Approve(requestCtx, ctx.Param("payment_id"), claims.UserID(), request.Amount, payment.Direction(request.Direction))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (server *Server) handlePaymentComplete(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request paymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	completion, err := server.payments.CompletePayment(requestCtx, ctx.Param("payment_id"), claims.UserID(), request.Amount, payment.Direction(request.Direction))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":   "completed",
		"replayed": completion.Receipt.Replayed,
		"wallet":   walletToPayload(completion.Receipt.Wallet),
	})
}
