package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet represents the wallets table.
type Wallet struct {
	WalletID      string    `gorm:"type:uuid;primaryKey"`
	UserID        string    `gorm:"not null;index:uniq_wallet_user,unique"`
	Address       string    `gorm:"not null;index:uniq_wallet_address,unique"`
	Balance       int64     `gorm:"not null;default:0"`
	LockedBalance int64     `gorm:"not null;default:0"`
	TotalSpent    int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

func (wallet *Wallet) BeforeCreate(tx *gorm.DB) error {
	if wallet.WalletID == "" {
		wallet.WalletID = uuid.NewString()
	}
	return nil
}

// WalletTransaction mirrors the wallet_transactions table.
type WalletTransaction struct {
	TransactionID  string         `gorm:"type:uuid;primaryKey"`
	WalletID       string         `gorm:"type:uuid;not null;index:idx_txn_wallet_created,priority:1;index:uniq_txn_idem,unique,priority:1"`
	Type           string         `gorm:"not null"`
	Amount         int64          `gorm:"not null"`
	BalanceAfter   int64          `gorm:"not null"`
	ReferenceID    *string        `gorm:""`
	ReferenceType  *string        `gorm:""`
	Description    string         `gorm:""`
	IdempotencyKey string         `gorm:"not null;index:uniq_txn_idem,unique,priority:2"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_txn_wallet_created,priority:2"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (transaction *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// Transfer mirrors the transfers table. The (from_user, key) pair anchors
// transfer idempotency across both legs.
type Transfer struct {
	TransferID     string    `gorm:"type:uuid;primaryKey"`
	FromUserID     string    `gorm:"not null;index:uniq_transfer_idem,unique,priority:1"`
	ToUserID       string    `gorm:"not null"`
	Amount         int64     `gorm:"not null"`
	IdempotencyKey string    `gorm:"not null;index:uniq_transfer_idem,unique,priority:2"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Transfer) TableName() string { return "transfers" }

// RewardDefinition mirrors the reward_definitions table. Rows with a nil
// EventID belong to the daily spin pool; rows with an EventID are lottery
// prizes keyed by rank.
type RewardDefinition struct {
	RewardID     string    `gorm:"type:uuid;primaryKey"`
	Title        string    `gorm:"not null"`
	Type         string    `gorm:"not null"`
	Weight       int64     `gorm:"not null;default:0"`
	Amount       int64     `gorm:"not null;default:0"`
	Rank         int       `gorm:"not null;default:0"`
	DisplayOrder int       `gorm:"not null;default:0"`
	Active       bool      `gorm:"not null;default:false;index:idx_reward_active"`
	EventID      *string   `gorm:"index:idx_reward_event"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (RewardDefinition) TableName() string { return "reward_definitions" }

func (definition *RewardDefinition) BeforeCreate(tx *gorm.DB) error {
	if definition.RewardID == "" {
		definition.RewardID = uuid.NewString()
	}
	return nil
}

// SpinLog mirrors the spin_logs table.
type SpinLog struct {
	SpinID         string         `gorm:"type:uuid;primaryKey"`
	UserID         string         `gorm:"not null;index:idx_spin_user_created,priority:1;index:uniq_spin_idem,unique,priority:1"`
	RewardID       string         `gorm:"not null"`
	Status         string         `gorm:"not null"`
	IdempotencyKey string         `gorm:"not null;index:uniq_spin_idem,unique,priority:2"`
	Snapshot       datatypes.JSON `gorm:"not null"`
	ContactName    string         `gorm:""`
	ContactPhone   string         `gorm:""`
	CreatedAt      time.Time      `gorm:"not null;index:idx_spin_user_created,priority:2"`
}

func (SpinLog) TableName() string { return "spin_logs" }

// LotteryEvent mirrors the lottery_events table.
type LotteryEvent struct {
	EventID   string    `gorm:"type:uuid;primaryKey"`
	Title     string    `gorm:"not null"`
	Status    string    `gorm:"not null;index:idx_event_status"`
	OpensAt   time.Time `gorm:"not null"`
	ClosesAt  time.Time `gorm:"not null"`
	MinNumber int       `gorm:"not null"`
	MaxNumber int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (LotteryEvent) TableName() string { return "lottery_events" }

// LotteryEntry mirrors the lottery_entries table. Both (event, number) and
// (event, user) are unique at the schema level; the number claim race is
// settled by the database, not by application checks.
type LotteryEntry struct {
	EntryID        string    `gorm:"type:uuid;primaryKey"`
	EventID        string    `gorm:"type:uuid;not null;index:uniq_entry_number,unique,priority:1;index:uniq_entry_user,unique,priority:1"`
	UserID         string    `gorm:"not null;index:uniq_entry_user,unique,priority:2"`
	ChosenNumber   int       `gorm:"not null;index:uniq_entry_number,unique,priority:2"`
	IdempotencyKey string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (LotteryEntry) TableName() string { return "lottery_entries" }

func (entry *LotteryEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// LotteryDrawResult mirrors the lottery_draw_results table.
type LotteryDrawResult struct {
	EventID       string    `gorm:"type:uuid;primaryKey"`
	Rank          int       `gorm:"primaryKey"`
	WinningNumber int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (LotteryDrawResult) TableName() string { return "lottery_draw_results" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Wallet{},
		&WalletTransaction{},
		&Transfer{},
		&RewardDefinition{},
		&SpinLog{},
		&LotteryEvent{},
		&LotteryEntry{},
		&LotteryDrawResult{},
	}
}
