package reward

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service runs weighted spin draws and lottery registrations over a Store.
type Service struct {
	store          Store
	nowFn          func() int64
	payouts        Payouts
	logger         OperationLogger
	maxSpinsPerDay int64
}

// NewService wires a Service. A Payouts implementation is required only when
// the pool contains PITD rewards; without one those payouts fail the spin.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, maxSpinsPerDay: defaultMaxSpinsPerDay}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Spin runs one weighted draw for the user. Replaying the same idempotency
// key returns the original log without drawing again. The daily quota counts
// recorded spins since UTC midnight on the service clock.
func (service *Service) Spin(ctx context.Context, userID UserID, idempotencyKey IdempotencyKey) (SpinLog, error) {
	var log SpinLog
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, found, err := transactionStore.GetSpinByKey(ctx, userID, idempotencyKey)
		if err != nil {
			return err
		}
		if found {
			existing.Replayed = true
			log = existing
			return nil
		}
		nowUnixUTC := service.nowFn()
		spinsToday, err := transactionStore.CountSpinsSince(ctx, userID, utcMidnight(nowUnixUTC))
		if err != nil {
			return err
		}
		if spinsToday >= service.maxSpinsPerDay {
			return ErrQuotaExceeded
		}
		pool, err := transactionStore.ListActiveRewards(ctx)
		if err != nil {
			return err
		}
		selected, err := pickWeighted(pool)
		if err != nil {
			return err
		}
		log = SpinLog{
			SpinID:         uuid.NewString(),
			UserID:         userID.String(),
			RewardID:       selected.RewardID,
			Status:         spinStatusFor(selected.Type),
			IdempotencyKey: idempotencyKey.String(),
			Snapshot:       snapshotOf(selected),
			CreatedUnixUTC: nowUnixUTC,
		}
		return transactionStore.InsertSpin(ctx, log)
	})
	if operationError == nil && needsPayout(log) {
		operationError = service.payoutPITD(ctx, &log)
	}
	service.logOperation(ctx, OperationLog{
		Operation:      operationSpin,
		UserID:         userID,
		RewardID:       log.RewardID,
		IdempotencyKey: idempotencyKey,
		Status:         replayStatus(log.Replayed, operationError),
		Error:          operationError,
	})
	return log, operationError
}

// needsPayout reports whether the spin still owes a wallet credit: a fresh
// completed PITD win, a replay of one (healing a crash between the spin commit
// and the credit), or a replay of a win whose payout previously failed.
func needsPayout(log SpinLog) bool {
	return log.Snapshot.Type == RewardPITD && (log.Status == SpinCompleted || log.Status == SpinFailed)
}

// payoutPITD credits the won amount through the wallet ledger. The ledger's
// idempotency key makes the credit safe to re-run, so replaying the spin key
// retries a failed payout and restores the completed status once it lands.
func (service *Service) payoutPITD(ctx context.Context, log *SpinLog) error {
	if service.payouts == nil {
		return fmt.Errorf("%w: payouts dependency is nil", ErrInvalidServiceConfig)
	}
	payoutErr := service.payouts.PayReward(ctx, log.UserID, log.Snapshot.Amount, log.SpinID, payoutKeyPrefix+log.IdempotencyKey)
	if payoutErr == nil {
		if log.Status == SpinFailed {
			if statusErr := service.store.UpdateSpinStatus(ctx, log.SpinID, SpinFailed, SpinCompleted); statusErr != nil {
				return WrapError(operationSpin, "payout", "mark_completed", statusErr)
			}
			log.Status = SpinCompleted
		}
		return nil
	}
	if log.Status == SpinCompleted && !log.Replayed {
		if statusErr := service.store.UpdateSpinStatus(ctx, log.SpinID, SpinCompleted, SpinFailed); statusErr != nil {
			return WrapError(operationSpin, "payout", "mark_failed", statusErr)
		}
		log.Status = SpinFailed
	}
	return WrapError(operationSpin, "payout", "credit", payoutErr)
}

// Claim attaches manual-fulfillment contact details to a pending spin.
func (service *Service) Claim(ctx context.Context, userID UserID, spinID string, contact ContactInfo) (SpinLog, error) {
	updated, operationError := service.store.UpdateSpinContact(ctx, spinID, userID, contact)
	service.logOperation(ctx, OperationLog{
		Operation: operationClaim,
		UserID:    userID,
		RewardID:  updated.RewardID,
		Error:     operationError,
	})
	return updated, operationError
}

// ConfigureReward creates or replaces a prize definition (admin surface).
func (service *Service) ConfigureReward(ctx context.Context, definition RewardDefinition) (RewardDefinition, error) {
	if definition.RewardID == "" {
		definition.RewardID = uuid.NewString()
	}
	if _, err := ParseRewardType(string(definition.Type)); err != nil {
		return RewardDefinition{}, err
	}
	if definition.Weight < 0 {
		return RewardDefinition{}, fmt.Errorf("%w: weight must not be negative", ErrInvalidDrawResults)
	}
	if err := service.store.UpsertReward(ctx, definition); err != nil {
		return RewardDefinition{}, err
	}
	return definition, nil
}

// ActiveRewards returns the current daily spin pool.
func (service *Service) ActiveRewards(ctx context.Context) ([]RewardDefinition, error) {
	return service.store.ListActiveRewards(ctx)
}

// SetRewardActive includes or excludes a prize from the draw pool (admin surface).
func (service *Service) SetRewardActive(ctx context.Context, rewardID string, active bool) error {
	return service.store.SetRewardActive(ctx, rewardID, active)
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

func spinStatusFor(rewardType RewardType) SpinStatus {
	switch rewardType {
	case RewardPI, RewardVoucher:
		return SpinPendingContact
	default:
		return SpinCompleted
	}
}

// utcMidnight truncates a unix timestamp to the start of its UTC day. The day
// boundary is the service clock's, never the client's.
func utcMidnight(unixUTC int64) int64 {
	return unixUTC - unixUTC%secondsPerDay
}

func replayStatus(replayed bool, err error) string {
	if err == nil && replayed {
		return operationStatusReplayed
	}
	return ""
}
