package reward

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateEvent schedules a new lottery event (admin surface).
func (service *Service) CreateEvent(ctx context.Context, event Event) (Event, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = EventScheduled
	}
	if _, err := ParseEventStatus(string(event.Status)); err != nil {
		return Event{}, err
	}
	if event.MinNumber >= event.MaxNumber {
		return Event{}, fmt.Errorf("%w: number range is empty", ErrInvalidNumber)
	}
	if event.ClosesAtUnixUTC <= event.OpensAtUnixUTC {
		return Event{}, fmt.Errorf("%w: event window is empty", ErrInvalidDrawResults)
	}
	if err := service.store.CreateEvent(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// GetEvent returns one event by id.
func (service *Service) GetEvent(ctx context.Context, eventID string) (Event, error) {
	return service.store.GetEvent(ctx, eventID)
}

// OpenEvent transitions a scheduled event to open (admin surface).
func (service *Service) OpenEvent(ctx context.Context, eventID string) error {
	return service.store.UpdateEventStatus(ctx, eventID, EventScheduled, EventOpen)
}

// CloseEvent transitions an open event to closed (admin surface).
func (service *Service) CloseEvent(ctx context.Context, eventID string) error {
	return service.store.UpdateEventStatus(ctx, eventID, EventOpen, EventClosed)
}

// Register claims a number for the user in an open event. The number-claim
// race is settled by the storage uniqueness constraint, never by a pre-check:
// the first writer wins and the loser gets ErrNumberAlreadyTaken. Replaying
// the same idempotency key returns the original entry.
func (service *Service) Register(ctx context.Context, userID UserID, eventID string, chosenNumber int, idempotencyKey IdempotencyKey) (Entry, error) {
	var entry Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		event, err := transactionStore.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		// The replay lookup precedes the window check: replaying a
		// registration after the event closes still returns the entry.
		existing, found, err := transactionStore.GetEntryForUser(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if found {
			if existing.IdempotencyKey == idempotencyKey.String() {
				existing.Replayed = true
				entry = existing
				return nil
			}
			return ErrAlreadyRegistered
		}
		nowUnixUTC := service.nowFn()
		if event.Status != EventOpen || nowUnixUTC < event.OpensAtUnixUTC || nowUnixUTC >= event.ClosesAtUnixUTC {
			return ErrEventNotOpen
		}
		if chosenNumber < event.MinNumber || chosenNumber > event.MaxNumber {
			return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidNumber, chosenNumber, event.MinNumber, event.MaxNumber)
		}
		entry = Entry{
			EntryID:        uuid.NewString(),
			EventID:        eventID,
			UserID:         userID.String(),
			ChosenNumber:   chosenNumber,
			IdempotencyKey: idempotencyKey.String(),
			CreatedUnixUTC: nowUnixUTC,
		}
		return transactionStore.InsertEntry(ctx, entry)
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationRegister,
		UserID:         userID,
		EventID:        eventID,
		IdempotencyKey: idempotencyKey,
		Status:         replayStatus(entry.Replayed, operationError),
		Error:          operationError,
	})
	return entry, operationError
}

// SubmitDrawResults records the externally drawn winning numbers per rank and
// moves the event to drawn. The event must already be closed.
func (service *Service) SubmitDrawResults(ctx context.Context, eventID string, results []DrawResult) error {
	if len(results) == 0 {
		return fmt.Errorf("%w: empty result set", ErrInvalidDrawResults)
	}
	seenRanks := make(map[int]struct{}, len(results))
	for _, result := range results {
		if result.Rank <= 0 {
			return fmt.Errorf("%w: rank %d", ErrInvalidDrawResults, result.Rank)
		}
		if _, duplicate := seenRanks[result.Rank]; duplicate {
			return fmt.Errorf("%w: duplicate rank %d", ErrInvalidDrawResults, result.Rank)
		}
		seenRanks[result.Rank] = struct{}{}
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		event, err := transactionStore.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != EventClosed {
			return ErrEventNotClosed
		}
		for index := range results {
			results[index].EventID = eventID
		}
		if err := transactionStore.InsertDrawResults(ctx, eventID, results); err != nil {
			return err
		}
		return transactionStore.UpdateEventStatus(ctx, eventID, EventClosed, EventDrawn)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDraw,
		EventID:   eventID,
		Error:     operationError,
	})
	return operationError
}

// Winners returns entries matching the drawn numbers, grouped by ascending
// prize rank (rank 1 first).
func (service *Service) Winners(ctx context.Context, eventID string) ([]RankWinners, error) {
	event, err := service.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != EventDrawn {
		return nil, ErrEventNotDrawn
	}
	results, err := service.store.ListDrawResults(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rewards, err := service.store.ListEventRewards(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rewardsByRank := make(map[int]RewardDefinition, len(rewards))
	for _, definition := range rewards {
		rewardsByRank[definition.Rank] = definition
	}
	winners := make([]RankWinners, 0, len(results))
	for _, result := range results {
		entries, err := service.store.ListEntriesByNumber(ctx, eventID, result.WinningNumber)
		if err != nil {
			return nil, err
		}
		ranked := RankWinners{
			Rank:          result.Rank,
			WinningNumber: result.WinningNumber,
			Entries:       entries,
		}
		if definition, ok := rewardsByRank[result.Rank]; ok {
			rewardCopy := definition
			ranked.Reward = &rewardCopy
		}
		winners = append(winners, ranked)
	}
	return winners, nil
}

// CloseDueEvents transitions open events past their close time (and scheduled
// events past their open time) on behalf of the background scheduler.
func (service *Service) CloseDueEvents(ctx context.Context) (int, error) {
	nowUnixUTC := service.nowFn()
	transitioned := 0
	dueOpen, err := service.store.ListDueEvents(ctx, EventScheduled, nowUnixUTC)
	if err != nil {
		return 0, err
	}
	for _, event := range dueOpen {
		if err := service.store.UpdateEventStatus(ctx, event.EventID, EventScheduled, EventOpen); err != nil {
			if errors.Is(err, ErrInvalidEventStatus) {
				continue
			}
			return transitioned, err
		}
		transitioned++
	}
	dueClose, err := service.store.ListDueEvents(ctx, EventOpen, nowUnixUTC)
	if err != nil {
		return transitioned, err
	}
	for _, event := range dueClose {
		if err := service.store.UpdateEventStatus(ctx, event.EventID, EventOpen, EventClosed); err != nil {
			if errors.Is(err, ErrInvalidEventStatus) {
				continue
			}
			return transitioned, err
		}
		transitioned++
	}
	return transitioned, nil
}
