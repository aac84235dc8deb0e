package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Transfer moves funds between two wallets as one atomic unit: either both the
// sender's debit and the receiver's credit are recorded, or neither is.
// Replaying the same (sender, idempotency key) pair returns the original
// result without re-debiting.
func (service *Service) Transfer(ctx context.Context, fromUserID UserID, toUserID UserID, amount PositiveAmount, idempotencyKey IdempotencyKey, metadata MetadataJSON) (TransferResult, error) {
	var result TransferResult
	operationError := service.validateTransfer(fromUserID, toUserID)
	if operationError == nil {
		operationError = service.runWithRetry(ctx, func(ctx context.Context) error {
			return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
				replayed, found, err := service.replayTransfer(ctx, transactionStore, fromUserID, idempotencyKey)
				if err != nil {
					return err
				}
				if found {
					result = replayed
					return nil
				}
				fromWallet, err := transactionStore.GetOrCreateWallet(ctx, fromUserID, GenerateWalletAddress(), service.nowFn())
				if err != nil {
					return err
				}
				toWallet, err := transactionStore.GetOrCreateWallet(ctx, toUserID, GenerateWalletAddress(), service.nowFn())
				if err != nil {
					return err
				}
				transferID := uuid.NewString()
				if err := transactionStore.InsertTransfer(ctx, TransferRecord{
					TransferID:     transferID,
					FromUserID:     fromUserID.String(),
					ToUserID:       toUserID.String(),
					Amount:         amount.ToAmount(),
					IdempotencyKey: idempotencyKey.String(),
					CreatedUnixUTC: service.nowFn(),
				}); err != nil {
					return err
				}
				reference := &Reference{ID: transferID, Type: referenceTypeTransfer}
				updatedFrom, err := transactionStore.DebitBalance(ctx, fromWallet.WalletID, amount)
				if err != nil {
					return err
				}
				debitKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixOut)
				if err != nil {
					return err
				}
				debit, err := transactionStore.AppendTransaction(ctx, TransactionInput{
					WalletID:       updatedFrom.WalletID,
					Type:           TransactionTransferOut,
					Amount:         amount.ToSigned().Negated(),
					BalanceAfter:   updatedFrom.Balance,
					Reference:      reference,
					Description:    "transfer to " + toWallet.Address,
					IdempotencyKey: debitKey,
					MetadataJSON:   metadata,
					CreatedUnixUTC: service.nowFn(),
				})
				if err != nil {
					return err
				}
				updatedTo, err := transactionStore.CreditBalance(ctx, toWallet.WalletID, amount)
				if err != nil {
					return err
				}
				creditKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixIn)
				if err != nil {
					return err
				}
				credit, err := transactionStore.AppendTransaction(ctx, TransactionInput{
					WalletID:       updatedTo.WalletID,
					Type:           TransactionTransferIn,
					Amount:         amount.ToSigned(),
					BalanceAfter:   updatedTo.Balance,
					Reference:      reference,
					Description:    "transfer from " + fromWallet.Address,
					IdempotencyKey: creditKey,
					MetadataJSON:   metadata,
					CreatedUnixUTC: service.nowFn(),
				})
				if err != nil {
					return err
				}
				result = TransferResult{
					TransferID: transferID,
					FromWallet: updatedFrom,
					ToWallet:   updatedTo,
					Debit:      debit,
					Credit:     credit,
				}
				return nil
			})
		})
	}
	counterparty := toUserID
	service.logOperation(ctx, OperationLog{
		Operation:      operationTransfer,
		UserID:         fromUserID,
		CounterpartyID: &counterparty,
		Amount:         amount.ToAmount(),
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Status:         replayStatus(result.Replayed, operationError),
		Error:          operationError,
	})
	return result, operationError
}

func (service *Service) validateTransfer(fromUserID UserID, toUserID UserID) error {
	if fromUserID == toUserID {
		return ErrSelfTransfer
	}
	return nil
}

// replayTransfer reconstructs the original result for a repeated idempotency key.
func (service *Service) replayTransfer(ctx context.Context, transactionStore Store, fromUserID UserID, idempotencyKey IdempotencyKey) (TransferResult, bool, error) {
	record, found, err := transactionStore.GetTransferByKey(ctx, fromUserID, idempotencyKey)
	if err != nil || !found {
		return TransferResult{}, false, err
	}
	toUserID, err := NewUserID(record.ToUserID)
	if err != nil {
		return TransferResult{}, false, err
	}
	fromWallet, err := transactionStore.GetWallet(ctx, fromUserID)
	if err != nil {
		return TransferResult{}, false, err
	}
	toWallet, err := transactionStore.GetWallet(ctx, toUserID)
	if err != nil {
		return TransferResult{}, false, err
	}
	debitKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixOut)
	if err != nil {
		return TransferResult{}, false, err
	}
	creditKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixIn)
	if err != nil {
		return TransferResult{}, false, err
	}
	debit, _, err := transactionStore.GetTransactionByKey(ctx, fromWallet.WalletID, debitKey)
	if err != nil {
		return TransferResult{}, false, err
	}
	credit, _, err := transactionStore.GetTransactionByKey(ctx, toWallet.WalletID, creditKey)
	if err != nil {
		return TransferResult{}, false, err
	}
	return TransferResult{
		TransferID: record.TransferID,
		FromWallet: fromWallet,
		ToWallet:   toWallet,
		Debit:      debit,
		Credit:     credit,
		Replayed:   true,
	}, true, nil
}

func deriveIdempotencyKey(baseKey IdempotencyKey, suffix string) (IdempotencyKey, error) {
	return NewIdempotencyKey(baseKey.String() + idempotencyKeyDelimiter + suffix)
}
