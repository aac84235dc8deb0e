package httpapi

import (
	"context"

	"github.com/pitodoapp/core/pkg/reward"
	"github.com/pitodoapp/core/pkg/wallet"
	"go.uber.org/zap"
)

// walletOperationLogger forwards wallet operation callbacks to zap.
type walletOperationLogger struct {
	logger *zap.Logger
}

// NewWalletOperationLogger adapts zap to the wallet OperationLogger contract.
func NewWalletOperationLogger(logger *zap.Logger) wallet.OperationLogger {
	return &walletOperationLogger{logger: logger}
}

func (operationLogger *walletOperationLogger) LogOperation(ctx context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("idempotency_key", entry.IdempotencyKey.String()),
		zap.String("status", entry.Status),
	}
	if entry.CounterpartyID != nil {
		fields = append(fields, zap.String("counterparty_id", entry.CounterpartyID.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("wallet operation failed", fields...)
		return
	}
	operationLogger.logger.Info("wallet operation", fields...)
}

// rewardOperationLogger forwards reward operation callbacks to zap.
type rewardOperationLogger struct {
	logger *zap.Logger
}

// NewRewardOperationLogger adapts zap to the reward OperationLogger contract.
func NewRewardOperationLogger(logger *zap.Logger) reward.OperationLogger {
	return &rewardOperationLogger{logger: logger}
}

func (operationLogger *rewardOperationLogger) LogOperation(ctx context.Context, entry reward.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("reward_id", entry.RewardID),
		zap.String("event_id", entry.EventID),
		zap.String("idempotency_key", entry.IdempotencyKey.String()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("reward operation failed", fields...)
		return
	}
	operationLogger.logger.Info("reward operation", fields...)
}
