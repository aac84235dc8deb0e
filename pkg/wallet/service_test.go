package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestCreditThenDebitEndToEnd(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-e2e")
	metadata := mustMetadata(test, "{}")

	creditReceipt, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 10), TransactionReward, nil, "spin reward", mustIdempotencyKey(test, "credit-1"), metadata)
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	if creditReceipt.Wallet.Balance != 10 {
		test.Fatalf("expected balance 10, got %d", creditReceipt.Wallet.Balance)
	}
	if creditReceipt.Transaction.Amount != 10 || creditReceipt.Transaction.BalanceAfter != 10 {
		test.Fatalf("unexpected credit transaction: %+v", creditReceipt.Transaction)
	}

	debitReceipt, err := service.Debit(context.Background(), userID, mustPositiveAmount(test, 4), TransactionPurchase, nil, "product purchase", mustIdempotencyKey(test, "debit-1"), metadata)
	if err != nil {
		test.Fatalf("debit: %v", err)
	}
	if debitReceipt.Wallet.Balance != 6 {
		test.Fatalf("expected balance 6, got %d", debitReceipt.Wallet.Balance)
	}
	if debitReceipt.Transaction.Amount != -4 || debitReceipt.Transaction.BalanceAfter != 6 {
		test.Fatalf("unexpected debit transaction: %+v", debitReceipt.Transaction)
	}

	before := len(store.transactions)
	_, err = service.Debit(context.Background(), userID, mustPositiveAmount(test, 10), TransactionPurchase, nil, "overdraw", mustIdempotencyKey(test, "debit-2"), metadata)
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(store.transactions) != before {
		test.Fatalf("failed debit must not append a transaction")
	}
	walletRecord := store.mustWallet(test, userID)
	if walletRecord.Balance != 6 {
		test.Fatalf("expected balance unchanged at 6, got %d", walletRecord.Balance)
	}
}

func TestLedgerReconcilesToBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-reconcile")
	metadata := mustMetadata(test, "{}")

	amounts := []int64{100, 30, 7, 55}
	for index, raw := range amounts {
		key := mustIdempotencyKey(test, fmt.Sprintf("credit-%d", index))
		if _, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, raw), TransactionDeposit, nil, "", key, metadata); err != nil {
			test.Fatalf("credit %d: %v", index, err)
		}
	}
	debits := []int64{40, 12}
	for index, raw := range debits {
		key := mustIdempotencyKey(test, fmt.Sprintf("debit-%d", index))
		if _, err := service.Debit(context.Background(), userID, mustPositiveAmount(test, raw), TransactionPurchase, nil, "", key, metadata); err != nil {
			test.Fatalf("debit %d: %v", index, err)
		}
	}
	if _, err := service.Hold(context.Background(), userID, mustPositiveAmount(test, 25), mustIdempotencyKey(test, "hold-0"), metadata); err != nil {
		test.Fatalf("hold: %v", err)
	}
	if _, err := service.ReleaseHold(context.Background(), userID, mustPositiveAmount(test, 5), mustIdempotencyKey(test, "release-0"), metadata); err != nil {
		test.Fatalf("release: %v", err)
	}

	walletRecord := store.mustWallet(test, userID)
	var replayed int64
	for _, transaction := range store.transactions {
		if transaction.WalletID == walletRecord.WalletID {
			replayed += transaction.Amount.Int64()
		}
	}
	if replayed != walletRecord.Balance.Int64() {
		test.Fatalf("ledger sum %d does not reconcile to balance %d", replayed, walletRecord.Balance)
	}
	if walletRecord.TotalSpent != 52 {
		test.Fatalf("expected total spent 52, got %d", walletRecord.TotalSpent)
	}
}

func TestDebitTracksTotalSpentMonotonically(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-spent")
	metadata := mustMetadata(test, "{}")

	if _, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 50), TransactionDeposit, nil, "", mustIdempotencyKey(test, "c"), metadata); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := service.Debit(context.Background(), userID, mustPositiveAmount(test, 20), TransactionPurchase, nil, "", mustIdempotencyKey(test, "d1"), metadata); err != nil {
		test.Fatalf("debit: %v", err)
	}
	_, err := service.Debit(context.Background(), userID, mustPositiveAmount(test, 100), TransactionPurchase, nil, "", mustIdempotencyKey(test, "d2"), metadata)
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	walletRecord := store.mustWallet(test, userID)
	if walletRecord.TotalSpent != 20 {
		test.Fatalf("failed debit must not move total_spent: got %d", walletRecord.TotalSpent)
	}
}

func TestCreditReplayReturnsOriginalReceipt(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "user-replay")
	metadata := mustMetadata(test, "{}")
	key := mustIdempotencyKey(test, "replay-key")
	amount := mustPositiveAmount(test, 25)

	first, err := service.Credit(context.Background(), userID, amount, TransactionReward, nil, "", key, metadata)
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	second, err := service.Credit(context.Background(), userID, amount, TransactionReward, nil, "", key, metadata)
	if err != nil {
		test.Fatalf("replay credit: %v", err)
	}
	if !second.Replayed {
		test.Fatalf("expected replayed receipt")
	}
	if second.Transaction.TransactionID != first.Transaction.TransactionID {
		test.Fatalf("replay returned a different transaction")
	}
	if len(store.transactions) != 1 {
		test.Fatalf("expected exactly one persisted transaction, got %d", len(store.transactions))
	}
	walletRecord := store.mustWallet(test, userID)
	if walletRecord.Balance != 25 {
		test.Fatalf("replay must not re-credit: balance %d", walletRecord.Balance)
	}
}

func TestCreditDuplicateKeyRaceReturnsStoredReceipt(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	racing := &racingStore{stubStore: store}
	service := mustNewService(test, racing)
	userID := mustUserID(test, "racing-user")
	metadata := mustMetadata(test, "{}")
	key := mustIdempotencyKey(test, "dup-race")
	amount := mustPositiveAmount(test, 50)

	first, err := service.Credit(context.Background(), userID, amount, TransactionDeposit, nil, "", key, metadata)
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	racing.missLookups = 1 // the in-tx lookup misses, as if the rival commits mid-flight

	second, err := service.Credit(context.Background(), userID, amount, TransactionDeposit, nil, "", key, metadata)
	if err != nil {
		test.Fatalf("expected the stored receipt, got %v", err)
	}
	if !second.Replayed || second.Transaction.TransactionID != first.Transaction.TransactionID {
		test.Fatalf("expected replay of the original transaction, got %+v", second)
	}
	walletRecord := store.mustWallet(test, userID)
	if walletRecord.Balance != 50 {
		test.Fatalf("race recovery must not double-credit: balance %d", walletRecord.Balance)
	}
	if len(store.committedTransactions()) != 1 {
		test.Fatalf("expected exactly one transaction, got %d", len(store.committedTransactions()))
	}
}

func TestTransferMovesFundsAtomically(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	sender := mustUserID(test, "sender")
	receiver := mustUserID(test, "receiver")
	metadata := mustMetadata(test, "{}")

	if _, err := service.Credit(context.Background(), sender, mustPositiveAmount(test, 100), TransactionDeposit, nil, "", mustIdempotencyKey(test, "seed"), metadata); err != nil {
		test.Fatalf("seed: %v", err)
	}
	result, err := service.Transfer(context.Background(), sender, receiver, mustPositiveAmount(test, 60), mustIdempotencyKey(test, "xfer-1"), metadata)
	if err != nil {
		test.Fatalf("transfer: %v", err)
	}
	if result.FromWallet.Balance != 40 || result.ToWallet.Balance != 60 {
		test.Fatalf("unexpected balances after transfer: %d / %d", result.FromWallet.Balance, result.ToWallet.Balance)
	}
	if result.Debit.Type != TransactionTransferOut || result.Debit.Amount != -60 {
		test.Fatalf("unexpected debit side: %+v", result.Debit)
	}
	if result.Credit.Type != TransactionTransferIn || result.Credit.Amount != 60 {
		test.Fatalf("unexpected credit side: %+v", result.Credit)
	}
	if result.Debit.ReferenceID != result.TransferID || result.Credit.ReferenceID != result.TransferID {
		test.Fatalf("both sides must reference the transfer")
	}
}

func TestTransferReplayDoesNotReDebit(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	sender := mustUserID(test, "sender-replay")
	receiver := mustUserID(test, "receiver-replay")
	metadata := mustMetadata(test, "{}")
	key := mustIdempotencyKey(test, "xfer-replay")

	if _, err := service.Credit(context.Background(), sender, mustPositiveAmount(test, 100), TransactionDeposit, nil, "", mustIdempotencyKey(test, "seed"), metadata); err != nil {
		test.Fatalf("seed: %v", err)
	}
	first, err := service.Transfer(context.Background(), sender, receiver, mustPositiveAmount(test, 30), key, metadata)
	if err != nil {
		test.Fatalf("transfer: %v", err)
	}
	second, err := service.Transfer(context.Background(), sender, receiver, mustPositiveAmount(test, 30), key, metadata)
	if err != nil {
		test.Fatalf("replay transfer: %v", err)
	}
	if !second.Replayed {
		test.Fatalf("expected replayed transfer")
	}
	if second.TransferID != first.TransferID {
		test.Fatalf("replay returned a different transfer id")
	}
	walletRecord := store.mustWallet(test, sender)
	if walletRecord.Balance != 70 {
		test.Fatalf("replay must not re-debit: balance %d", walletRecord.Balance)
	}
}

func TestTransferRejectsSelfTransfer(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "selfish")
	metadata := mustMetadata(test, "{}")

	_, err := service.Transfer(context.Background(), userID, userID, mustPositiveAmount(test, 10), mustIdempotencyKey(test, "self"), metadata)
	if !errors.Is(err, ErrSelfTransfer) {
		test.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestTransferInsufficientFundsLeavesNoTrace(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	sender := mustUserID(test, "broke-sender")
	receiver := mustUserID(test, "lucky-receiver")
	metadata := mustMetadata(test, "{}")

	_, err := service.Transfer(context.Background(), sender, receiver, mustPositiveAmount(test, 10), mustIdempotencyKey(test, "xfer-broke"), metadata)
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(store.committedTransactions()) != 0 {
		test.Fatalf("failed transfer must not leave transactions")
	}
}

func TestTransferAtomicUnderMidOperationFailure(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	sender := mustUserID(test, "atomic-sender")
	receiver := mustUserID(test, "atomic-receiver")
	metadata := mustMetadata(test, "{}")

	if _, err := service.Credit(context.Background(), sender, mustPositiveAmount(test, 100), TransactionDeposit, nil, "", mustIdempotencyKey(test, "seed"), metadata); err != nil {
		test.Fatalf("seed: %v", err)
	}
	store.failNextCredit = true // receiver-side credit fails after the debit applied

	_, err := service.Transfer(context.Background(), sender, receiver, mustPositiveAmount(test, 50), mustIdempotencyKey(test, "xfer-fail"), metadata)
	if err == nil {
		test.Fatalf("expected mid-operation failure")
	}
	walletRecord := store.mustWallet(test, sender)
	if walletRecord.Balance != 100 {
		test.Fatalf("aborted transfer must roll back the debit: balance %d", walletRecord.Balance)
	}
	for _, transaction := range store.committedTransactions() {
		if transaction.Type == TransactionTransferOut || transaction.Type == TransactionTransferIn {
			test.Fatalf("aborted transfer must not leave either leg, found %+v", transaction)
		}
	}
}

func TestConcurrentDebitsAllowOnlyOneSuccess(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "racer")
	metadata := mustMetadata(test, "{}")
	amount := mustPositiveAmount(test, 70)
	keys := []IdempotencyKey{mustIdempotencyKey(test, "race-a"), mustIdempotencyKey(test, "race-b")}

	if _, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 100), TransactionDeposit, nil, "", mustIdempotencyKey(test, "seed"), metadata); err != nil {
		test.Fatalf("seed: %v", err)
	}

	results := make([]error, len(keys))
	var wg sync.WaitGroup
	for index, key := range keys {
		wg.Add(1)
		go func(index int, key IdempotencyKey) {
			defer wg.Done()
			_, results[index] = service.Debit(context.Background(), userID, amount, TransactionPurchase, nil, "", key, metadata)
		}(index, key)
	}
	wg.Wait()

	var succeeded, overdrawn int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
			overdrawn++
		default:
			test.Fatalf("unexpected debit error: %v", err)
		}
	}
	if succeeded != 1 || overdrawn != 1 {
		test.Fatalf("expected one success and one ErrInsufficientBalance, got %d / %d", succeeded, overdrawn)
	}
	walletRecord := store.mustWallet(test, userID)
	if walletRecord.Balance != 30 {
		test.Fatalf("expected balance 30 after the race, got %d", walletRecord.Balance)
	}
}

func TestHoldAndReleaseMoveLockedBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "escrow-user")
	metadata := mustMetadata(test, "{}")

	if _, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 80), TransactionDeposit, nil, "", mustIdempotencyKey(test, "seed"), metadata); err != nil {
		test.Fatalf("seed: %v", err)
	}
	held, err := service.Hold(context.Background(), userID, mustPositiveAmount(test, 30), mustIdempotencyKey(test, "hold-1"), metadata)
	if err != nil {
		test.Fatalf("hold: %v", err)
	}
	if held.Balance != 50 || held.LockedBalance != 30 {
		test.Fatalf("unexpected balances after hold: %d / %d", held.Balance, held.LockedBalance)
	}
	released, err := service.ReleaseHold(context.Background(), userID, mustPositiveAmount(test, 30), mustIdempotencyKey(test, "release-1"), metadata)
	if err != nil {
		test.Fatalf("release: %v", err)
	}
	if released.Balance != 80 || released.LockedBalance != 0 {
		test.Fatalf("unexpected balances after release: %d / %d", released.Balance, released.LockedBalance)
	}

	var holds, releases int
	var ledgerSum int64
	for _, transaction := range store.committedTransactions() {
		ledgerSum += transaction.Amount.Int64()
		switch transaction.Type {
		case TransactionHold:
			holds++
			if transaction.Amount != -30 || transaction.BalanceAfter != 50 {
				test.Fatalf("unexpected hold entry: %+v", transaction)
			}
		case TransactionHoldRelease:
			releases++
			if transaction.Amount != 30 || transaction.BalanceAfter != 80 {
				test.Fatalf("unexpected release entry: %+v", transaction)
			}
		}
	}
	if holds != 1 || releases != 1 {
		test.Fatalf("expected one hold and one release entry, got %d / %d", holds, releases)
	}
	if ledgerSum != released.Balance.Int64() {
		test.Fatalf("ledger sum %d does not reconcile to balance %d", ledgerSum, released.Balance)
	}

	replayed, err := service.Hold(context.Background(), userID, mustPositiveAmount(test, 30), mustIdempotencyKey(test, "hold-1"), metadata)
	if err != nil {
		test.Fatalf("replay hold: %v", err)
	}
	if replayed.Balance != 80 || replayed.LockedBalance != 0 {
		test.Fatalf("hold replay must not move funds again: %d / %d", replayed.Balance, replayed.LockedBalance)
	}
}

func TestListTransactionsFiltersByDirection(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "history-user")
	metadata := mustMetadata(test, "{}")

	if _, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 40), TransactionDeposit, nil, "", mustIdempotencyKey(test, "c1"), metadata); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := service.Debit(context.Background(), userID, mustPositiveAmount(test, 15), TransactionPurchase, nil, "", mustIdempotencyKey(test, "d1"), metadata); err != nil {
		test.Fatalf("debit: %v", err)
	}

	credits, err := service.ListTransactions(context.Background(), userID, TransactionFilter{Direction: DirectionCredits})
	if err != nil {
		test.Fatalf("list credits: %v", err)
	}
	if len(credits) != 1 || credits[0].Amount <= 0 {
		test.Fatalf("unexpected credits listing: %+v", credits)
	}
	debits, err := service.ListTransactions(context.Background(), userID, TransactionFilter{Direction: DirectionDebits})
	if err != nil {
		test.Fatalf("list debits: %v", err)
	}
	if len(debits) != 1 || debits[0].Amount >= 0 {
		test.Fatalf("unexpected debits listing: %+v", debits)
	}
}

func TestBalanceWithoutWalletReportsNotFound(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	_, err := service.Balance(context.Background(), mustUserID(test, "ghost"))
	if !errors.Is(err, ErrWalletNotFound) {
		test.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestGetOrCreateWalletIsStablePerUser(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "lazy-user")

	first, err := service.GetOrCreateWallet(context.Background(), userID)
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	second, err := service.GetOrCreateWallet(context.Background(), userID)
	if err != nil {
		test.Fatalf("fetch: %v", err)
	}
	if first.WalletID != second.WalletID || first.Address != second.Address {
		test.Fatalf("expected one wallet per user, got %+v vs %+v", first, second)
	}
	if first.Balance != 0 || first.LockedBalance != 0 {
		test.Fatalf("fresh wallet must start at zero: %+v", first)
	}
}

func TestRetryRecoversFromTransientStoreFailure(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.transientFailures = 2
	service := mustNewService(test, store)
	userID := mustUserID(test, "flaky-user")
	metadata := mustMetadata(test, "{}")

	receipt, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 5), TransactionDeposit, nil, "", mustIdempotencyKey(test, "flaky"), metadata)
	if err != nil {
		test.Fatalf("expected retry to succeed, got %v", err)
	}
	if receipt.Wallet.Balance != 5 {
		test.Fatalf("unexpected balance after retried credit: %d", receipt.Wallet.Balance)
	}
}

func TestRetryGivesUpAfterBoundedAttempts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.transientFailures = 10
	service := mustNewService(test, store)
	userID := mustUserID(test, "down-user")
	metadata := mustMetadata(test, "{}")

	_, err := service.Credit(context.Background(), userID, mustPositiveAmount(test, 5), TransactionDeposit, nil, "", mustIdempotencyKey(test, "down"), metadata)
	if !errors.Is(err, ErrLedgerUnavailable) {
		test.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if len(store.committedTransactions()) != 0 {
		test.Fatalf("no mutation may survive a failed retry loop")
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	_, err := NewService(nil, func() int64 { return 0 })
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	_, err = NewService(newStubStore(), nil)
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}
