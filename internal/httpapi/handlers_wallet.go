package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pitodoapp/core/pkg/wallet"
)

type walletPayload struct {
	WalletID       string `json:"wallet_id"`
	Address        string `json:"address"`
	Balance        int64  `json:"balance"`
	LockedBalance  int64  `json:"locked_balance"`
	TotalSpent     int64  `json:"total_spent"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type transactionPayload struct {
	TransactionID  string          `json:"transaction_id"`
	Type           string          `json:"type"`
	Amount         int64           `json:"amount"`
	BalanceAfter   int64           `json:"balance_after"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	Description    string          `json:"description,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

func walletToPayload(record wallet.Wallet) walletPayload {
	return walletPayload{
		WalletID:       record.WalletID,
		Address:        record.Address,
		Balance:        record.Balance.Int64(),
		LockedBalance:  record.LockedBalance.Int64(),
		TotalSpent:     record.TotalSpent.Int64(),
		CreatedUnixUTC: record.CreatedUnixUTC,
	}
}

func transactionToPayload(transaction wallet.Transaction) transactionPayload {
	metadata := transaction.MetadataJSON
	if metadata == "" {
		metadata = "{}"
	}
	return transactionPayload{
		TransactionID:  transaction.TransactionID,
		Type:           transaction.Type.String(),
		Amount:         transaction.Amount.Int64(),
		BalanceAfter:   transaction.BalanceAfter.Int64(),
		ReferenceID:    transaction.ReferenceID,
		ReferenceType:  transaction.ReferenceType,
		Description:    transaction.Description,
		IdempotencyKey: transaction.IdempotencyKey,
		Metadata:       json.RawMessage(metadata),
		CreatedUnixUTC: transaction.CreatedUnixUTC,
	}
}

func transactionsToPayload(transactions []wallet.Transaction) []transactionPayload {
	payload := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payload = append(payload, transactionToPayload(transaction))
	}
	return payload
}

func (server *Server) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), server.cfg.RequestTimeout)
}

func (server *Server) handleWallet(ctx *gin.Context) {
	claims := getClaims(ctx)
	userID, err := wallet.NewUserID(claims.UserID())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	record, err := server.wallets.GetOrCreateWallet(requestCtx, userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	transactions, err := server.wallets.ListTransactions(requestCtx, userID, wallet.TransactionFilter{Limit: defaultHistoryLimit})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"wallet":       walletToPayload(record),
		"transactions": transactionsToPayload(transactions),
	})
}

func (server *Server) handleListTransactions(ctx *gin.Context) {
	claims := getClaims(ctx)
	userID, err := wallet.NewUserID(claims.UserID())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	direction, err := wallet.ParseDirection(ctx.Query("direction"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	transactions, err := server.wallets.ListTransactions(requestCtx, userID, wallet.TransactionFilter{
		Direction: direction,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": transactionsToPayload(transactions)})
}

type transferRequest struct {
	ToUserID       string         `json:"to_user_id"`
	Amount         int64          `json:"amount"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

func (server *Server) handleTransfer(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request transferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	fromUserID, err := wallet.NewUserID(claims.UserID())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	toUserID, err := wallet.NewUserID(request.ToUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	amount, err := wallet.NewPositiveAmount(request.Amount)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	key, err := wallet.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	metadata, err := wallet.NewMetadataJSON(marshalMetadata(request.Metadata))
	if err != nil {
		server.respondError(ctx, err)
		return
	}

	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	result, err := server.wallets.Transfer(requestCtx, fromUserID, toUserID, amount, key, metadata)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"transfer_id": result.TransferID,
		"replayed":    result.Replayed,
		"from_wallet": walletToPayload(result.FromWallet),
		"to_wallet":   walletToPayload(result.ToWallet),
		"debit":       transactionToPayload(result.Debit),
		"credit":      transactionToPayload(result.Credit),
	})
}

func marshalMetadata(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
