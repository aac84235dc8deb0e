package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Amount is a non-negative PITD quantity in minor units.
type Amount int64

// SignedAmount is a ledger-entry delta in minor units; positive credits, negative debits.
type SignedAmount int64

// UserID identifies a wallet owner.
type UserID struct {
	value string
}

// IdempotencyKey scopes duplicate detection for a mutating operation.
type IdempotencyKey struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// WalletAddress is the wallet's unique display identifier.
type WalletAddress struct {
	value string
}

// PositiveAmount is a strictly positive operation amount.
type PositiveAmount struct {
	value int64
}

// TransactionType enumerates ledger transaction kinds.
type TransactionType string

const (
	TransactionPurchase      TransactionType = "purchase"
	TransactionSale          TransactionType = "sale"
	TransactionTransferIn    TransactionType = "transfer_in"
	TransactionTransferOut   TransactionType = "transfer_out"
	TransactionServiceFee    TransactionType = "service_fee"
	TransactionTax           TransactionType = "tax"
	TransactionReward        TransactionType = "reward"
	TransactionRefund        TransactionType = "refund"
	TransactionDeposit       TransactionType = "deposit"
	TransactionWithdrawal    TransactionType = "withdrawal"
	TransactionProductRedeem TransactionType = "product_redeem"
	TransactionHold          TransactionType = "hold"
	TransactionHoldRelease   TransactionType = "hold_release"
)

var knownTransactionTypes = map[TransactionType]struct{}{
	TransactionPurchase:      {},
	TransactionSale:          {},
	TransactionTransferIn:    {},
	TransactionTransferOut:   {},
	TransactionServiceFee:    {},
	TransactionTax:           {},
	TransactionReward:        {},
	TransactionRefund:        {},
	TransactionDeposit:       {},
	TransactionWithdrawal:    {},
	TransactionProductRedeem: {},
	TransactionHold:          {},
	TransactionHoldRelease:   {},
}

// Direction filters transaction listings by entry sign.
type Direction string

const (
	DirectionAll     Direction = "all"
	DirectionCredits Direction = "credits"
	DirectionDebits  Direction = "debits"
)

// Reference links a transaction to the entity that caused it.
type Reference struct {
	ID   string
	Type string
}

// Wallet is the per-user balance record.
type Wallet struct {
	WalletID       string
	UserID         string
	Address        string
	Balance        Amount
	LockedBalance  Amount
	TotalSpent     Amount
	CreatedUnixUTC int64
}

// Transaction is a single immutable ledger line.
type Transaction struct {
	TransactionID  string
	WalletID       string
	Type           TransactionType
	Amount         SignedAmount
	BalanceAfter   Amount
	ReferenceID    string
	ReferenceType  string
	Description    string
	IdempotencyKey string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// TransactionInput describes a ledger line to append.
type TransactionInput struct {
	WalletID       string
	Type           TransactionType
	Amount         SignedAmount
	BalanceAfter   Amount
	Reference      *Reference
	Description    string
	IdempotencyKey IdempotencyKey
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
}

// Receipt is the result of a single credit or debit.
type Receipt struct {
	Wallet      Wallet
	Transaction Transaction
	Replayed    bool
}

// TransferRecord is the persisted idempotency anchor for a transfer.
type TransferRecord struct {
	TransferID     string
	FromUserID     string
	ToUserID       string
	Amount         Amount
	IdempotencyKey string
	CreatedUnixUTC int64
}

// TransferResult reports both sides of a completed transfer.
type TransferResult struct {
	TransferID string
	FromWallet Wallet
	ToWallet   Wallet
	Debit      Transaction
	Credit     Transaction
	Replayed   bool
}

// TransactionFilter narrows ListTransactions output.
type TransactionFilter struct {
	Direction     Direction
	Limit         int
	Offset        int
	FromUnixUTC   int64
	BeforeUnixUTC int64
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateWallet(ctx context.Context, userID UserID, address WalletAddress, nowUnixUTC int64) (Wallet, error)
	GetWallet(ctx context.Context, userID UserID) (Wallet, error)
	CreditBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error)
	DebitBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error)
	LockBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error)
	UnlockBalance(ctx context.Context, walletID string, amount PositiveAmount) (Wallet, error)
	AppendTransaction(ctx context.Context, input TransactionInput) (Transaction, error)
	GetTransactionByKey(ctx context.Context, walletID string, key IdempotencyKey) (Transaction, bool, error)
	ListTransactions(ctx context.Context, walletID string, filter TransactionFilter) ([]Transaction, error)
	InsertTransfer(ctx context.Context, record TransferRecord) error
	GetTransferByKey(ctx context.Context, fromUserID UserID, key IdempotencyKey) (TransferRecord, bool, error)
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// NewWalletAddress validates an existing wallet address.
func NewWalletAddress(raw string) (WalletAddress, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WalletAddress{}, fmt.Errorf("%w: empty value", ErrInvalidWalletAddress)
	}
	return WalletAddress{value: trimmed}, nil
}

// GenerateWalletAddress produces a fresh unique display address.
func GenerateWalletAddress() WalletAddress {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return WalletAddress{value: walletAddressPrefix + suffix[:walletAddressSuffixLength]}
}

// String returns the address text.
func (address WalletAddress) String() string {
	return address.value
}

// NewAmount validates a non-negative amount.
func NewAmount(raw int64) (Amount, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// Int64 returns the raw minor-unit value.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// NewPositiveAmount validates a strictly positive amount.
func NewPositiveAmount(raw int64) (PositiveAmount, error) {
	if raw <= 0 {
		return PositiveAmount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmount{value: raw}, nil
}

// Int64 returns the raw minor-unit value.
func (amount PositiveAmount) Int64() int64 {
	return amount.value
}

// ToAmount converts to a non-negative Amount.
func (amount PositiveAmount) ToAmount() Amount {
	return Amount(amount.value)
}

// ToSigned returns the amount as a positive ledger delta.
func (amount PositiveAmount) ToSigned() SignedAmount {
	return SignedAmount(amount.value)
}

// Int64 returns the raw signed delta.
func (amount SignedAmount) Int64() int64 {
	return int64(amount)
}

// Negated flips the sign of the delta.
func (amount SignedAmount) Negated() SignedAmount {
	return -amount
}

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	candidate := TransactionType(raw)
	if _, ok := knownTransactionTypes[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
	return candidate, nil
}

// String returns the stored representation.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseDirection validates a listing direction ("" defaults to all).
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionAll, "":
		return DirectionAll, nil
	case DirectionCredits:
		return DirectionCredits, nil
	case DirectionDebits:
		return DirectionDebits, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}
