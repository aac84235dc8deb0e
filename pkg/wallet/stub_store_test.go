package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
)

// stubStore is an in-memory Store with snapshot-rollback transactions, so the
// service's atomicity guarantees are observable without a database. WithTx
// serializes on a mutex the way row-level locks serialize writers to one row.
type stubStore struct {
	mu                sync.Mutex
	wallets           map[string]Wallet // keyed by user id
	transactions      []Transaction
	transfers         []TransferRecord
	nextID            int
	failNextCredit    bool
	transientFailures int
}

func newStubStore() *stubStore {
	return &stubStore{wallets: make(map[string]Wallet)}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.transientFailures > 0 {
		store.transientFailures--
		return WrapError("store", "tx", "begin", ErrLedgerUnavailable)
	}
	snapshotWallets := make(map[string]Wallet, len(store.wallets))
	for key, value := range store.wallets {
		snapshotWallets[key] = value
	}
	snapshotTransactions := append([]Transaction(nil), store.transactions...)
	snapshotTransfers := append([]TransferRecord(nil), store.transfers...)
	if err := fn(ctx, store); err != nil {
		store.wallets = snapshotWallets
		store.transactions = snapshotTransactions
		store.transfers = snapshotTransfers
		return err
	}
	return nil
}

func (store *stubStore) GetOrCreateWallet(ctx context.Context, userID UserID, address WalletAddress, nowUnixUTC int64) (Wallet, error) {
	if existing, ok := store.wallets[userID.String()]; ok {
		return existing, nil
	}
	store.nextID++
	created := Wallet{
		WalletID:       fmt.Sprintf("wallet-%d", store.nextID),
		UserID:         userID.String(),
		Address:        address.String(),
		CreatedUnixUTC: nowUnixUTC,
	}
	store.wallets[userID.String()] = created
	return created, nil
}

func (store *stubStore) GetWallet(ctx context.Context, userID UserID) (Wallet, error) {
	existing, ok := store.wallets[userID.String()]
	if !ok {
		return Wallet{}, WrapError("store", "wallet", "get", ErrWalletNotFound)
	}
	return existing, nil
}

func (store *stubStore) walletByID(walletID string) (Wallet, string, bool) {
	for key, value := range store.wallets {
		if value.WalletID == walletID {
			return value, key, true
		}
	}
	return Wallet{}, "", false
}

func (store *stubStore) CreditBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error) {
	if store.failNextCredit {
		store.failNextCredit = false
		return Wallet{}, errors.New("injected credit failure")
	}
	record, key, ok := store.walletByID(walletID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	record.Balance += Amount(amount.Int64())
	store.wallets[key] = record
	return record, nil
}

func (store *stubStore) DebitBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error) {
	record, key, ok := store.walletByID(walletID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if record.Balance.Int64() < amount.Int64() {
		return Wallet{}, WrapError("store", "wallet", "debit", ErrInsufficientBalance)
	}
	record.Balance -= Amount(amount.Int64())
	record.TotalSpent += Amount(amount.Int64())
	store.wallets[key] = record
	return record, nil
}

func (store *stubStore) LockBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error) {
	record, key, ok := store.walletByID(walletID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if record.Balance.Int64() < amount.Int64() {
		return Wallet{}, WrapError("store", "wallet", "lock", ErrInsufficientBalance)
	}
	record.Balance -= Amount(amount.Int64())
	record.LockedBalance += Amount(amount.Int64())
	store.wallets[key] = record
	return record, nil
}

func (store *stubStore) UnlockBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error) {
	record, key, ok := store.walletByID(walletID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if record.LockedBalance.Int64() < amount.Int64() {
		return Wallet{}, WrapError("store", "wallet", "unlock", ErrInsufficientBalance)
	}
	record.LockedBalance -= Amount(amount.Int64())
	record.Balance += Amount(amount.Int64())
	store.wallets[key] = record
	return record, nil
}

func (store *stubStore) AppendTransaction(ctx context.Context, input TransactionInput) (Transaction, error) {
	for _, existing := range store.transactions {
		if existing.WalletID == input.WalletID && existing.IdempotencyKey == input.IdempotencyKey.String() {
			return Transaction{}, WrapError("store", "transaction", "duplicate", ErrDuplicateIdempotencyKey)
		}
	}
	store.nextID++
	transaction := Transaction{
		TransactionID:  fmt.Sprintf("txn-%d", store.nextID),
		WalletID:       input.WalletID,
		Type:           input.Type,
		Amount:         input.Amount,
		BalanceAfter:   input.BalanceAfter,
		Description:    input.Description,
		IdempotencyKey: input.IdempotencyKey.String(),
		MetadataJSON:   input.MetadataJSON.String(),
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	if input.Reference != nil {
		transaction.ReferenceID = input.Reference.ID
		transaction.ReferenceType = input.Reference.Type
	}
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubStore) GetTransactionByKey(ctx context.Context, walletID string, key IdempotencyKey) (Transaction, bool, error) {
	for _, existing := range store.transactions {
		if existing.WalletID == walletID && existing.IdempotencyKey == key.String() {
			return existing, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (store *stubStore) ListTransactions(ctx context.Context, walletID string, filter TransactionFilter) ([]Transaction, error) {
	var out []Transaction
	for _, existing := range store.transactions {
		if existing.WalletID != walletID {
			continue
		}
		if filter.Direction == DirectionCredits && existing.Amount <= 0 {
			continue
		}
		if filter.Direction == DirectionDebits && existing.Amount >= 0 {
			continue
		}
		out = append(out, existing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedUnixUTC > out[j].CreatedUnixUTC })
	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (store *stubStore) InsertTransfer(ctx context.Context, record TransferRecord) error {
	for _, existing := range store.transfers {
		if existing.FromUserID == record.FromUserID && existing.IdempotencyKey == record.IdempotencyKey {
			return WrapError("store", "transfer", "duplicate", ErrDuplicateIdempotencyKey)
		}
	}
	store.transfers = append(store.transfers, record)
	return nil
}

func (store *stubStore) GetTransferByKey(ctx context.Context, fromUserID UserID, key IdempotencyKey) (TransferRecord, bool, error) {
	for _, existing := range store.transfers {
		if existing.FromUserID == fromUserID.String() && existing.IdempotencyKey == key.String() {
			return existing, true, nil
		}
	}
	return TransferRecord{}, false, nil
}

// racingStore drops the first N idempotency lookups, reproducing the window
// where a concurrent writer with the same key commits between the lookup and
// the append.
type racingStore struct {
	*stubStore
	missLookups int
}

func (store *racingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return store.stubStore.WithTx(ctx, func(ctx context.Context, _ Store) error {
		return fn(ctx, store)
	})
}

func (store *racingStore) GetTransactionByKey(ctx context.Context, walletID string, key IdempotencyKey) (Transaction, bool, error) {
	if store.missLookups > 0 {
		store.missLookups--
		return Transaction{}, false, nil
	}
	return store.stubStore.GetTransactionByKey(ctx, walletID, key)
}

func (store *stubStore) committedTransactions() []Transaction {
	return append([]Transaction(nil), store.transactions...)
}

func (store *stubStore) mustWallet(test *testing.T, userID UserID) Wallet {
	test.Helper()
	record, ok := store.wallets[userID.String()]
	if !ok {
		test.Fatalf("wallet for %s not found", userID.String())
	}
	return record
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 100 })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustPositiveAmount(test *testing.T, raw int64) PositiveAmount {
	test.Helper()
	value, err := NewPositiveAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}
