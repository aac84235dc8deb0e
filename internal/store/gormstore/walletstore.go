package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitodoapp/core/pkg/wallet"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	pgSerializationCode   = "40001"
	pgDeadlockCode        = "40P01"
	sqliteConstraintCode  = 19
	sqliteBusyCode        = 5
	sqliteLockedCode      = 6
	errorOperationStore   = "store"
	errorSubjectWallet    = "wallet"
	errorSubjectBalance   = "balance"
	errorSubjectTxn       = "transaction"
	errorSubjectTransfer  = "transfer"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeUpdate       = "update"
)

// WalletStore implements wallet.Store using GORM.
type WalletStore struct {
	db *gorm.DB
}

// NewWalletStore returns a WalletStore backed by gorm.DB.
func NewWalletStore(db *gorm.DB) *WalletStore {
	return &WalletStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *WalletStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &WalletStore{db: transaction})
	})
	if isTransientError(err) {
		return wrapWalletError(errorSubjectWallet, errorCodeUpdate, fmt.Errorf("%w: %v", wallet.ErrLedgerUnavailable, err))
	}
	return err
}

func (store *WalletStore) GetOrCreateWallet(ctx context.Context, userID wallet.UserID, address wallet.WalletAddress, nowUnixUTC int64) (wallet.Wallet, error) {
	var model Wallet
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		candidate := Wallet{
			UserID:    userID.String(),
			Address:   address.String(),
			CreatedAt: time.Unix(nowUnixUTC, 0).UTC(),
		}
		createErr := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&candidate).Error
		if createErr != nil && !isUniqueViolation(createErr) {
			return wallet.Wallet{}, wrapWalletError(errorSubjectWallet, errorCodeCreate, createErr)
		}
		err = store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	}
	if err != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectWallet, errorCodeLookup, err)
	}
	return mapWallet(model), nil
}

func (store *WalletStore) GetWallet(ctx context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	var model Wallet
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Wallet{}, wrapWalletError(errorSubjectWallet, errorCodeGet, wallet.ErrWalletNotFound)
	}
	if err != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(model), nil
}

func (store *WalletStore) CreditBalance(ctx context.Context, walletID string, amount wallet.PositiveAmount) (wallet.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("wallet_id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", amount.Int64()))
	if result.Error != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.Wallet{}, wrapWalletError(errorSubjectBalance, errorCodeUpdate, wallet.ErrWalletNotFound)
	}
	return store.fetchWalletByID(ctx, walletID)
}

// DebitBalance withdraws in a single conditional update; the balance
// never drops below zero even under concurrent debits.
func (store *WalletStore) DebitBalance(ctx context.Context, walletID string, amount wallet.PositiveAmount) (wallet.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("wallet_id = ? AND balance >= ?", walletID, amount.Int64()).
		Updates(map[string]interface{}{
			"balance":     gorm.Expr("balance - ?", amount.Int64()),
			"total_spent": gorm.Expr("total_spent + ?", amount.Int64()),
		})
	if result.Error != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.Wallet{}, store.classifyMissingFunds(ctx, walletID)
	}
	return store.fetchWalletByID(ctx, walletID)
}

func (store *WalletStore) LockBalance(ctx context.Context, walletID string, amount wallet.PositiveAmount) (wallet.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("wallet_id = ? AND balance >= ?", walletID, amount.Int64()).
		Updates(map[string]interface{}{
			"balance":        gorm.Expr("balance - ?", amount.Int64()),
			"locked_balance": gorm.Expr("locked_balance + ?", amount.Int64()),
		})
	if result.Error != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.Wallet{}, store.classifyMissingFunds(ctx, walletID)
	}
	return store.fetchWalletByID(ctx, walletID)
}

func (store *WalletStore) UnlockBalance(ctx context.Context, walletID string, amount wallet.PositiveAmount) (wallet.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("wallet_id = ? AND locked_balance >= ?", walletID, amount.Int64()).
		Updates(map[string]interface{}{
			"balance":        gorm.Expr("balance + ?", amount.Int64()),
			"locked_balance": gorm.Expr("locked_balance - ?", amount.Int64()),
		})
	if result.Error != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wallet.Wallet{}, store.classifyMissingFunds(ctx, walletID)
	}
	return store.fetchWalletByID(ctx, walletID)
}

func (store *WalletStore) AppendTransaction(ctx context.Context, input wallet.TransactionInput) (wallet.Transaction, error) {
	var referenceID, referenceType *string
	if input.Reference != nil {
		id, kind := input.Reference.ID, input.Reference.Type
		referenceID, referenceType = &id, &kind
	}
	model := WalletTransaction{
		WalletID:       input.WalletID,
		Type:           input.Type.String(),
		Amount:         input.Amount.Int64(),
		BalanceAfter:   input.BalanceAfter.Int64(),
		ReferenceID:    referenceID,
		ReferenceType:  referenceType,
		Description:    input.Description,
		IdempotencyKey: input.IdempotencyKey.String(),
		Metadata:       datatypesJSON(input.MetadataJSON.String()),
		CreatedAt:      time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wallet.Transaction{}, wrapWalletError(errorSubjectTxn, errorCodeDuplicate, wallet.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wallet.Transaction{}, wrapWalletError(errorSubjectTxn, errorCodeInsert, err)
	}
	mapped, err := mapTransaction(model)
	if err != nil {
		return wallet.Transaction{}, wrapWalletError(errorSubjectTxn, errorCodeInvalid, err)
	}
	return mapped, nil
}

func (store *WalletStore) GetTransactionByKey(ctx context.Context, walletID string, key wallet.IdempotencyKey) (wallet.Transaction, bool, error) {
	var model WalletTransaction
	err := store.db.WithContext(ctx).
		Where("wallet_id = ? AND idempotency_key = ?", walletID, key.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Transaction{}, false, nil
	}
	if err != nil {
		return wallet.Transaction{}, false, wrapWalletError(errorSubjectTxn, errorCodeLookup, err)
	}
	mapped, err := mapTransaction(model)
	if err != nil {
		return wallet.Transaction{}, false, wrapWalletError(errorSubjectTxn, errorCodeInvalid, err)
	}
	return mapped, true, nil
}

func (store *WalletStore) ListTransactions(ctx context.Context, walletID string, filter wallet.TransactionFilter) ([]wallet.Transaction, error) {
	query := store.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	switch filter.Direction {
	case wallet.DirectionCredits:
		query = query.Where("amount > 0")
	case wallet.DirectionDebits:
		query = query.Where("amount < 0")
	}
	if filter.FromUnixUTC != 0 {
		query = query.Where("created_at >= ?", time.Unix(filter.FromUnixUTC, 0).UTC())
	}
	if filter.BeforeUnixUTC != 0 {
		query = query.Where("created_at < ?", time.Unix(filter.BeforeUnixUTC, 0).UTC())
	}

	var rows []WalletTransaction
	err := query.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&rows).Error
	if err != nil {
		return nil, wrapWalletError(errorSubjectTxn, errorCodeList, err)
	}
	transactions := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapTransaction(row)
		if err != nil {
			return nil, wrapWalletError(errorSubjectTxn, errorCodeInvalid, err)
		}
		transactions = append(transactions, mapped)
	}
	return transactions, nil
}

func (store *WalletStore) InsertTransfer(ctx context.Context, record wallet.TransferRecord) error {
	model := Transfer{
		TransferID:     record.TransferID,
		FromUserID:     record.FromUserID,
		ToUserID:       record.ToUserID,
		Amount:         record.Amount.Int64(),
		IdempotencyKey: record.IdempotencyKey,
		CreatedAt:      time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapWalletError(errorSubjectTransfer, errorCodeDuplicate, wallet.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapWalletError(errorSubjectTransfer, errorCodeInsert, err)
	}
	return nil
}

func (store *WalletStore) GetTransferByKey(ctx context.Context, fromUserID wallet.UserID, key wallet.IdempotencyKey) (wallet.TransferRecord, bool, error) {
	var model Transfer
	err := store.db.WithContext(ctx).
		Where("from_user_id = ? AND idempotency_key = ?", fromUserID.String(), key.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.TransferRecord{}, false, nil
	}
	if err != nil {
		return wallet.TransferRecord{}, false, wrapWalletError(errorSubjectTransfer, errorCodeLookup, err)
	}
	amount, err := wallet.NewAmount(model.Amount)
	if err != nil {
		return wallet.TransferRecord{}, false, wrapWalletError(errorSubjectTransfer, errorCodeInvalid, err)
	}
	return wallet.TransferRecord{
		TransferID:     model.TransferID,
		FromUserID:     model.FromUserID,
		ToUserID:       model.ToUserID,
		Amount:         amount,
		IdempotencyKey: model.IdempotencyKey,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, true, nil
}

func (store *WalletStore) fetchWalletByID(ctx context.Context, walletID string) (wallet.Wallet, error) {
	var model Wallet
	err := store.db.WithContext(ctx).Where("wallet_id = ?", walletID).Take(&model).Error
	if err != nil {
		return wallet.Wallet{}, wrapWalletError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(model), nil
}

// classifyMissingFunds distinguishes a missing wallet from an insufficient
// balance after a conditional update touched zero rows.
func (store *WalletStore) classifyMissingFunds(ctx context.Context, walletID string) error {
	var count int64
	err := store.db.WithContext(ctx).Model(&Wallet{}).Where("wallet_id = ?", walletID).Count(&count).Error
	if err != nil {
		return wrapWalletError(errorSubjectWallet, errorCodeLookup, err)
	}
	if count == 0 {
		return wrapWalletError(errorSubjectBalance, errorCodeUpdate, wallet.ErrWalletNotFound)
	}
	return wrapWalletError(errorSubjectBalance, errorCodeUpdate, wallet.ErrInsufficientBalance)
}

func wrapWalletError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func mapWallet(model Wallet) wallet.Wallet {
	return wallet.Wallet{
		WalletID:       model.WalletID,
		UserID:         model.UserID,
		Address:        model.Address,
		Balance:        wallet.Amount(model.Balance),
		LockedBalance:  wallet.Amount(model.LockedBalance),
		TotalSpent:     wallet.Amount(model.TotalSpent),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}

func mapTransaction(model WalletTransaction) (wallet.Transaction, error) {
	transactionType, err := wallet.ParseTransactionType(model.Type)
	if err != nil {
		return wallet.Transaction{}, err
	}
	balanceAfter, err := wallet.NewAmount(model.BalanceAfter)
	if err != nil {
		return wallet.Transaction{}, err
	}
	transaction := wallet.Transaction{
		TransactionID:  model.TransactionID,
		WalletID:       model.WalletID,
		Type:           transactionType,
		Amount:         wallet.SignedAmount(model.Amount),
		BalanceAfter:   balanceAfter,
		Description:    model.Description,
		IdempotencyKey: model.IdempotencyKey,
		MetadataJSON:   string(model.Metadata),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.ReferenceID != nil {
		transaction.ReferenceID = *model.ReferenceID
	}
	if model.ReferenceType != nil {
		transaction.ReferenceType = *model.ReferenceType
	}
	return transaction, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}
