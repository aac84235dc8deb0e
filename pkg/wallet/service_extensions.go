package wallet

import "context"

// Hold moves spendable balance into the locked (escrow) portion of the wallet
// and appends the matching ledger entry in the same transaction. The move is a
// single conditional store write; overdrawing fails with
// ErrInsufficientBalance. Replaying the same idempotency key returns the
// current wallet without moving funds again.
func (service *Service) Hold(requestContext context.Context, userID UserID, amount PositiveAmount, idempotencyKey IdempotencyKey, metadata MetadataJSON) (Wallet, error) {
	var held Wallet
	operationError := service.runWithRetry(requestContext, func(ctx context.Context) error {
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			walletRecord, err := transactionStore.GetOrCreateWallet(ctx, userID, GenerateWalletAddress(), service.nowFn())
			if err != nil {
				return err
			}
			_, found, err := transactionStore.GetTransactionByKey(ctx, walletRecord.WalletID, idempotencyKey)
			if err != nil {
				return err
			}
			if found {
				held = walletRecord
				return nil
			}
			held, err = transactionStore.LockBalance(ctx, walletRecord.WalletID, amount)
			if err != nil {
				return err
			}
			_, err = transactionStore.AppendTransaction(ctx, TransactionInput{
				WalletID:       held.WalletID,
				Type:           TransactionHold,
				Amount:         amount.ToSigned().Negated(),
				BalanceAfter:   held.Balance,
				Description:    "balance hold",
				IdempotencyKey: idempotencyKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: service.nowFn(),
			})
			return err
		})
	})
	service.logOperation(requestContext, OperationLog{
		Operation:      operationHold,
		UserID:         userID,
		Amount:         amount.ToAmount(),
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return held, operationError
}

// ReleaseHold moves locked balance back into the spendable portion, appending
// the matching ledger entry in the same transaction.
func (service *Service) ReleaseHold(requestContext context.Context, userID UserID, amount PositiveAmount, idempotencyKey IdempotencyKey, metadata MetadataJSON) (Wallet, error) {
	var released Wallet
	operationError := service.runWithRetry(requestContext, func(ctx context.Context) error {
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			walletRecord, err := transactionStore.GetWallet(ctx, userID)
			if err != nil {
				return err
			}
			_, found, err := transactionStore.GetTransactionByKey(ctx, walletRecord.WalletID, idempotencyKey)
			if err != nil {
				return err
			}
			if found {
				released = walletRecord
				return nil
			}
			released, err = transactionStore.UnlockBalance(ctx, walletRecord.WalletID, amount)
			if err != nil {
				return err
			}
			_, err = transactionStore.AppendTransaction(ctx, TransactionInput{
				WalletID:       released.WalletID,
				Type:           TransactionHoldRelease,
				Amount:         amount.ToSigned(),
				BalanceAfter:   released.Balance,
				Description:    "balance hold release",
				IdempotencyKey: idempotencyKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: service.nowFn(),
			})
			return err
		})
	})
	service.logOperation(requestContext, OperationLog{
		Operation:      operationReleaseHold,
		UserID:         userID,
		Amount:         amount.ToAmount(),
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return released, operationError
}
