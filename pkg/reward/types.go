package reward

import (
	"context"
	"fmt"
	"strings"
)

// RewardType enumerates payout kinds for a configured prize.
type RewardType string

const (
	RewardPI      RewardType = "PI"
	RewardPITD    RewardType = "PITD"
	RewardVoucher RewardType = "VOUCHER"
	RewardNone    RewardType = "NONE"
)

// SpinStatus is the lifecycle of a spin log.
type SpinStatus string

const (
	SpinCompleted      SpinStatus = "completed"
	SpinPendingContact SpinStatus = "pending_contact"
	SpinFailed         SpinStatus = "failed"
)

// EventStatus is the lifecycle of a lottery event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventOpen      EventStatus = "open"
	EventClosed    EventStatus = "closed"
	EventDrawn     EventStatus = "drawn"
)

// UserID identifies the drawing user.
type UserID struct {
	value string
}

// IdempotencyKey scopes duplicate detection for a draw or registration.
type IdempotencyKey struct {
	value string
}

// RewardDefinition is one configured prize in a pool.
type RewardDefinition struct {
	RewardID     string
	Title        string
	Type         RewardType
	Weight       int64
	Amount       int64
	Rank         int
	DisplayOrder int
	Active       bool
	EventID      string
}

// RewardSnapshot freezes the shape of a reward at draw time, so later pool
// edits never change historical results.
type RewardSnapshot struct {
	RewardID string     `json:"reward_id"`
	Title    string     `json:"title"`
	Type     RewardType `json:"type"`
	Weight   int64      `json:"weight"`
	Amount   int64      `json:"amount"`
	Rank     int        `json:"rank"`
}

// ContactInfo is the manual-fulfillment contact attached to a pending spin.
type ContactInfo struct {
	Name  string
	Phone string
}

// SpinLog is one recorded draw attempt.
type SpinLog struct {
	SpinID         string
	UserID         string
	RewardID       string
	Status         SpinStatus
	IdempotencyKey string
	Snapshot       RewardSnapshot
	Contact        ContactInfo
	CreatedUnixUTC int64
	Replayed       bool
}

// Event is a time-boxed lottery draw.
type Event struct {
	EventID         string
	Title           string
	Status          EventStatus
	OpensAtUnixUTC  int64
	ClosesAtUnixUTC int64
	MinNumber       int
	MaxNumber       int
}

// Entry is one registered number for an event.
type Entry struct {
	EntryID        string
	EventID        string
	UserID         string
	ChosenNumber   int
	IdempotencyKey string
	CreatedUnixUTC int64
	Replayed       bool
}

// DrawResult designates the winning number for one prize rank.
type DrawResult struct {
	EventID       string
	Rank          int
	WinningNumber int
}

// RankWinners groups winning entries under their prize tier.
type RankWinners struct {
	Rank          int
	WinningNumber int
	Reward        *RewardDefinition
	Entries       []Entry
}

// Payouts pays out PITD-type rewards through the wallet ledger.
type Payouts interface {
	PayReward(ctx context.Context, userID string, amount int64, spinID string, idempotencyKey string) error
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	ListActiveRewards(ctx context.Context) ([]RewardDefinition, error)
	GetReward(ctx context.Context, rewardID string) (RewardDefinition, error)
	UpsertReward(ctx context.Context, definition RewardDefinition) error
	SetRewardActive(ctx context.Context, rewardID string, active bool) error
	ListEventRewards(ctx context.Context, eventID string) ([]RewardDefinition, error)

	GetSpinByKey(ctx context.Context, userID UserID, key IdempotencyKey) (SpinLog, bool, error)
	CountSpinsSince(ctx context.Context, userID UserID, sinceUnixUTC int64) (int64, error)
	InsertSpin(ctx context.Context, log SpinLog) error
	UpdateSpinStatus(ctx context.Context, spinID string, from SpinStatus, to SpinStatus) error
	UpdateSpinContact(ctx context.Context, spinID string, userID UserID, contact ContactInfo) (SpinLog, error)

	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID string) (Event, error)
	UpdateEventStatus(ctx context.Context, eventID string, from EventStatus, to EventStatus) error
	ListDueEvents(ctx context.Context, status EventStatus, nowUnixUTC int64) ([]Event, error)

	GetEntryForUser(ctx context.Context, eventID string, userID UserID) (Entry, bool, error)
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntriesByNumber(ctx context.Context, eventID string, number int) ([]Entry, error)

	InsertDrawResults(ctx context.Context, eventID string, results []DrawResult) error
	ListDrawResults(ctx context.Context, eventID string) ([]DrawResult, error)
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

// ParseRewardType validates a stored reward type.
func ParseRewardType(raw string) (RewardType, error) {
	switch RewardType(raw) {
	case RewardPI, RewardPITD, RewardVoucher, RewardNone:
		return RewardType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRewardType, raw)
	}
}

// ParseEventStatus validates a stored event status.
func ParseEventStatus(raw string) (EventStatus, error) {
	switch EventStatus(raw) {
	case EventScheduled, EventOpen, EventClosed, EventDrawn:
		return EventStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventStatus, raw)
	}
}

// ParseSpinStatus validates a stored spin status.
func ParseSpinStatus(raw string) (SpinStatus, error) {
	switch SpinStatus(raw) {
	case SpinCompleted, SpinPendingContact, SpinFailed:
		return SpinStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSpinStatus, raw)
	}
}

// snapshotOf copies the reward's draw-time shape into the log.
func snapshotOf(definition RewardDefinition) RewardSnapshot {
	return RewardSnapshot{
		RewardID: definition.RewardID,
		Title:    definition.Title,
		Type:     definition.Type,
		Weight:   definition.Weight,
		Amount:   definition.Amount,
		Rank:     definition.Rank,
	}
}
