package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pitodoapp/core/pkg/reward"
	"github.com/pitodoapp/core/pkg/wallet"
)

type adjustmentRequest struct {
	UserID         string         `json:"user_id"`
	Amount         int64          `json:"amount"`
	Type           string         `json:"type"`
	Description    string         `json:"description"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

type adjustmentInput struct {
	userID   wallet.UserID
	amount   wallet.PositiveAmount
	key      wallet.IdempotencyKey
	metadata wallet.MetadataJSON
}

func (server *Server) bindAdjustment(ctx *gin.Context) (adjustmentRequest, adjustmentInput, bool) {
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return adjustmentRequest{}, adjustmentInput{}, false
	}
	userID, err := wallet.NewUserID(request.UserID)
	if err != nil {
		server.respondError(ctx, err)
		return adjustmentRequest{}, adjustmentInput{}, false
	}
	amount, err := wallet.NewPositiveAmount(request.Amount)
	if err != nil {
		server.respondError(ctx, err)
		return adjustmentRequest{}, adjustmentInput{}, false
	}
	key, err := wallet.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		server.respondError(ctx, err)
		return adjustmentRequest{}, adjustmentInput{}, false
	}
	metadata, err := wallet.NewMetadataJSON(marshalMetadata(request.Metadata))
	if err != nil {
		server.respondError(ctx, err)
		return adjustmentRequest{}, adjustmentInput{}, false
	}
	return request, adjustmentInput{userID: userID, amount: amount, key: key, metadata: metadata}, true
}

func adjustmentType(raw string, fallback wallet.TransactionType) (wallet.TransactionType, error) {
	if raw == "" {
		return fallback, nil
	}
	return wallet.ParseTransactionType(raw)
}

func (server *Server) handleAdminCredit(ctx *gin.Context) {
	request, input, ok := server.bindAdjustment(ctx)
	if !ok {
		return
	}
	transactionType, err := adjustmentType(request.Type, wallet.TransactionDeposit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	receipt, err := server.wallets.Credit(requestCtx, input.userID, input.amount, transactionType, nil, request.Description, input.key, input.metadata)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"wallet":      walletToPayload(receipt.Wallet),
		"transaction": transactionToPayload(receipt.Transaction),
		"replayed":    receipt.Replayed,
	})
}

func (server *Server) handleAdminDebit(ctx *gin.Context) {
	request, input, ok := server.bindAdjustment(ctx)
	if !ok {
		return
	}
	transactionType, err := adjustmentType(request.Type, wallet.TransactionServiceFee)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	receipt, err := server.wallets.Debit(requestCtx, input.userID, input.amount, transactionType, nil, request.Description, input.key, input.metadata)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"wallet":      walletToPayload(receipt.Wallet),
		"transaction": transactionToPayload(receipt.Transaction),
		"replayed":    receipt.Replayed,
	})
}

func (server *Server) handleAdminHold(ctx *gin.Context) {
	_, input, ok := server.bindAdjustment(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	held, err := server.wallets.Hold(requestCtx, input.userID, input.amount, input.key, input.metadata)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": walletToPayload(held)})
}

func (server *Server) handleAdminRelease(ctx *gin.Context) {
	_, input, ok := server.bindAdjustment(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	released, err := server.wallets.ReleaseHold(requestCtx, input.userID, input.amount, input.key, input.metadata)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": walletToPayload(released)})
}

type upsertRewardRequest struct {
	RewardID     string `json:"reward_id"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Weight       int64  `json:"weight"`
	Amount       int64  `json:"amount"`
	Rank         int    `json:"rank"`
	DisplayOrder int    `json:"display_order"`
	Active       bool   `json:"active"`
	EventID      string `json:"event_id"`
}

func (server *Server) handleAdminUpsertReward(ctx *gin.Context) {
	var request upsertRewardRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	definition, err := server.rewards.ConfigureReward(requestCtx, reward.RewardDefinition{
		RewardID:     request.RewardID,
		Title:        request.Title,
		Type:         reward.RewardType(request.Type),
		Weight:       request.Weight,
		Amount:       request.Amount,
		Rank:         request.Rank,
		DisplayOrder: request.DisplayOrder,
		Active:       request.Active,
		EventID:      request.EventID,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reward": rewardToPayload(definition)})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (server *Server) handleAdminSetRewardActive(ctx *gin.Context) {
	var request setActiveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	if err := server.rewards.SetRewardActive(requestCtx, ctx.Param("reward_id"), request.Active); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createEventRequest struct {
	Title           string `json:"title"`
	OpensAtUnixUTC  int64  `json:"opens_at_unix_utc"`
	ClosesAtUnixUTC int64  `json:"closes_at_unix_utc"`
	MinNumber       int    `json:"min_number"`
	MaxNumber       int    `json:"max_number"`
}

func (server *Server) handleAdminCreateEvent(ctx *gin.Context) {
	var request createEventRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	event, err := server.rewards.CreateEvent(requestCtx, reward.Event{
		Title:           request.Title,
		OpensAtUnixUTC:  request.OpensAtUnixUTC,
		ClosesAtUnixUTC: request.ClosesAtUnixUTC,
		MinNumber:       request.MinNumber,
		MaxNumber:       request.MaxNumber,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": eventToPayload(event)})
}

func (server *Server) handleAdminOpenEvent(ctx *gin.Context) {
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	if err := server.rewards.OpenEvent(requestCtx, ctx.Param("event_id")); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleAdminCloseEvent(ctx *gin.Context) {
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	if err := server.rewards.CloseEvent(requestCtx, ctx.Param("event_id")); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type drawRequest struct {
	Results []struct {
		Rank          int `json:"rank"`
		WinningNumber int `json:"winning_number"`
	} `json:"results"`
}

func (server *Server) handleAdminDraw(ctx *gin.Context) {
	var request drawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	results := make([]reward.DrawResult, 0, len(request.Results))
	for _, result := range request.Results {
		results = append(results, reward.DrawResult{Rank: result.Rank, WinningNumber: result.WinningNumber})
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	if err := server.rewards.SubmitDrawResults(requestCtx, ctx.Param("event_id"), results); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
