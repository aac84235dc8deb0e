package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the ledger domain logic over a Store.
type Service struct {
	store         Store
	nowFn         func() int64
	logger        OperationLogger
	retryAttempts int
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, retryAttempts: defaultRetryAttempts}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetOrCreateWallet returns the caller's wallet, creating it with zero
// balances and a fresh address on first access. A concurrent creator losing
// the unique-constraint race gets the winner's row back from the store.
func (service *Service) GetOrCreateWallet(ctx context.Context, userID UserID) (Wallet, error) {
	return service.store.GetOrCreateWallet(ctx, userID, GenerateWalletAddress(), service.nowFn())
}

// Balance returns the wallet without creating one; absent wallets read as ErrWalletNotFound.
func (service *Service) Balance(ctx context.Context, userID UserID) (Wallet, error) {
	return service.store.GetWallet(ctx, userID)
}

// Credit atomically increases the balance and appends the matching transaction.
// Replaying the same idempotency key returns the original receipt.
func (service *Service) Credit(ctx context.Context, userID UserID, amount PositiveAmount, transactionType TransactionType, reference *Reference, description string, idempotencyKey IdempotencyKey, metadata MetadataJSON) (Receipt, error) {
	var receipt Receipt
	operationError := service.runWithRetry(ctx, func(ctx context.Context) error {
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			walletRecord, err := transactionStore.GetOrCreateWallet(ctx, userID, GenerateWalletAddress(), service.nowFn())
			if err != nil {
				return err
			}
			existing, found, err := transactionStore.GetTransactionByKey(ctx, walletRecord.WalletID, idempotencyKey)
			if err != nil {
				return err
			}
			if found {
				receipt = Receipt{Wallet: walletRecord, Transaction: existing, Replayed: true}
				return nil
			}
			updatedWallet, err := transactionStore.CreditBalance(ctx, walletRecord.WalletID, amount)
			if err != nil {
				return err
			}
			appended, err := transactionStore.AppendTransaction(ctx, TransactionInput{
				WalletID:       updatedWallet.WalletID,
				Type:           transactionType,
				Amount:         amount.ToSigned(),
				BalanceAfter:   updatedWallet.Balance,
				Reference:      reference,
				Description:    description,
				IdempotencyKey: idempotencyKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: service.nowFn(),
			})
			if err != nil {
				return err
			}
			receipt = Receipt{Wallet: updatedWallet, Transaction: appended}
			return nil
		})
	})
	if errors.Is(operationError, ErrDuplicateIdempotencyKey) {
		receipt, operationError = service.recoverReplay(ctx, userID, idempotencyKey, operationError)
	}
	service.logOperation(ctx, OperationLog{
		Operation:      operationCredit,
		UserID:         userID,
		Amount:         amount.ToAmount(),
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Status:         replayStatus(receipt.Replayed, operationError),
		Error:          operationError,
	})
	return receipt, operationError
}

// Debit atomically decreases the balance, bumps total_spent, and appends the
// matching transaction. The balance check and decrement are one conditional
// store write; overdrawing fails with ErrInsufficientBalance.
func (service *Service) Debit(ctx context.Context, userID UserID, amount PositiveAmount, transactionType TransactionType, reference *Reference, description string, idempotencyKey IdempotencyKey, metadata MetadataJSON) (Receipt, error) {
	var receipt Receipt
	operationError := service.runWithRetry(ctx, func(ctx context.Context) error {
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			walletRecord, err := transactionStore.GetOrCreateWallet(ctx, userID, GenerateWalletAddress(), service.nowFn())
			if err != nil {
				return err
			}
			existing, found, err := transactionStore.GetTransactionByKey(ctx, walletRecord.WalletID, idempotencyKey)
			if err != nil {
				return err
			}
			if found {
				receipt = Receipt{Wallet: walletRecord, Transaction: existing, Replayed: true}
				return nil
			}
			updatedWallet, err := transactionStore.DebitBalance(ctx, walletRecord.WalletID, amount)
			if err != nil {
				return err
			}
			appended, err := transactionStore.AppendTransaction(ctx, TransactionInput{
				WalletID:       updatedWallet.WalletID,
				Type:           transactionType,
				Amount:         amount.ToSigned().Negated(),
				BalanceAfter:   updatedWallet.Balance,
				Reference:      reference,
				Description:    description,
				IdempotencyKey: idempotencyKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: service.nowFn(),
			})
			if err != nil {
				return err
			}
			receipt = Receipt{Wallet: updatedWallet, Transaction: appended}
			return nil
		})
	})
	if errors.Is(operationError, ErrDuplicateIdempotencyKey) {
		receipt, operationError = service.recoverReplay(ctx, userID, idempotencyKey, operationError)
	}
	service.logOperation(ctx, OperationLog{
		Operation:      operationDebit,
		UserID:         userID,
		Amount:         amount.ToAmount(),
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Status:         replayStatus(receipt.Replayed, operationError),
		Error:          operationError,
	})
	return receipt, operationError
}

// ListTransactions returns the wallet's history ordered newest first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, filter TransactionFilter) ([]Transaction, error) {
	walletRecord, err := service.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return service.store.ListTransactions(ctx, walletRecord.WalletID, filter)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// recoverReplay resolves a duplicate-key insert race: a concurrent writer with
// the same key committed between the lookup and the append, so its stored
// transaction is this caller's result.
func (service *Service) recoverReplay(ctx context.Context, userID UserID, idempotencyKey IdempotencyKey, duplicateErr error) (Receipt, error) {
	walletRecord, err := service.store.GetWallet(ctx, userID)
	if err != nil {
		return Receipt{}, duplicateErr
	}
	existing, found, err := service.store.GetTransactionByKey(ctx, walletRecord.WalletID, idempotencyKey)
	if err != nil || !found {
		return Receipt{}, duplicateErr
	}
	return Receipt{Wallet: walletRecord, Transaction: existing, Replayed: true}, nil
}

// runWithRetry re-runs fn for transient store failures only. Each attempt is a
// fresh transaction; domain errors surface immediately.
func (service *Service) runWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := initialRetryBackoff
	var lastErr error
	for attempt := 0; attempt < service.retryAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil || !errors.Is(lastErr, ErrLedgerUnavailable) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func replayStatus(replayed bool, err error) string {
	if err == nil && replayed {
		return operationStatusReplayed
	}
	return ""
}
