package reward

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// stubStore is an in-memory Store with snapshot-rollback transactions.
type stubStore struct {
	rewards     map[string]RewardDefinition
	spins       []SpinLog
	events      map[string]Event
	entries     []Entry
	drawResults map[string][]DrawResult
}

func newStubStore() *stubStore {
	return &stubStore{
		rewards:     make(map[string]RewardDefinition),
		events:      make(map[string]Event),
		drawResults: make(map[string][]DrawResult),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	snapshotRewards := make(map[string]RewardDefinition, len(store.rewards))
	for key, value := range store.rewards {
		snapshotRewards[key] = value
	}
	snapshotEvents := make(map[string]Event, len(store.events))
	for key, value := range store.events {
		snapshotEvents[key] = value
	}
	snapshotSpins := append([]SpinLog(nil), store.spins...)
	snapshotEntries := append([]Entry(nil), store.entries...)
	if err := fn(ctx, store); err != nil {
		store.rewards = snapshotRewards
		store.events = snapshotEvents
		store.spins = snapshotSpins
		store.entries = snapshotEntries
		return err
	}
	return nil
}

func (store *stubStore) ListActiveRewards(ctx context.Context) ([]RewardDefinition, error) {
	var out []RewardDefinition
	for _, definition := range store.rewards {
		if definition.Active && definition.EventID == "" {
			out = append(out, definition)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RewardID < out[j].RewardID })
	return out, nil
}

func (store *stubStore) GetReward(ctx context.Context, rewardID string) (RewardDefinition, error) {
	definition, ok := store.rewards[rewardID]
	if !ok {
		return RewardDefinition{}, ErrUnknownReward
	}
	return definition, nil
}

func (store *stubStore) UpsertReward(ctx context.Context, definition RewardDefinition) error {
	store.rewards[definition.RewardID] = definition
	return nil
}

func (store *stubStore) SetRewardActive(ctx context.Context, rewardID string, active bool) error {
	definition, ok := store.rewards[rewardID]
	if !ok {
		return ErrUnknownReward
	}
	definition.Active = active
	store.rewards[rewardID] = definition
	return nil
}

func (store *stubStore) ListEventRewards(ctx context.Context, eventID string) ([]RewardDefinition, error) {
	var out []RewardDefinition
	for _, definition := range store.rewards {
		if definition.EventID == eventID {
			out = append(out, definition)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (store *stubStore) GetSpinByKey(ctx context.Context, userID UserID, key IdempotencyKey) (SpinLog, bool, error) {
	for _, log := range store.spins {
		if log.UserID == userID.String() && log.IdempotencyKey == key.String() {
			return log, true, nil
		}
	}
	return SpinLog{}, false, nil
}

func (store *stubStore) CountSpinsSince(ctx context.Context, userID UserID, sinceUnixUTC int64) (int64, error) {
	var count int64
	for _, log := range store.spins {
		if log.UserID == userID.String() && log.CreatedUnixUTC >= sinceUnixUTC {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) InsertSpin(ctx context.Context, log SpinLog) error {
	for _, existing := range store.spins {
		if existing.UserID == log.UserID && existing.IdempotencyKey == log.IdempotencyKey {
			return WrapError("store", "spin", "duplicate", ErrInvalidIdempotencyKey)
		}
	}
	store.spins = append(store.spins, log)
	return nil
}

func (store *stubStore) UpdateSpinStatus(ctx context.Context, spinID string, from SpinStatus, to SpinStatus) error {
	for index, existing := range store.spins {
		if existing.SpinID == spinID && existing.Status == from {
			store.spins[index].Status = to
			return nil
		}
	}
	return ErrUnknownSpin
}

func (store *stubStore) UpdateSpinContact(ctx context.Context, spinID string, userID UserID, contact ContactInfo) (SpinLog, error) {
	for index, existing := range store.spins {
		if existing.SpinID != spinID || existing.UserID != userID.String() {
			continue
		}
		if existing.Status != SpinPendingContact {
			return SpinLog{}, ErrSpinNotPending
		}
		store.spins[index].Contact = contact
		return store.spins[index], nil
	}
	return SpinLog{}, ErrUnknownSpin
}

func (store *stubStore) CreateEvent(ctx context.Context, event Event) error {
	store.events[event.EventID] = event
	return nil
}

func (store *stubStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	event, ok := store.events[eventID]
	if !ok {
		return Event{}, ErrUnknownEvent
	}
	return event, nil
}

func (store *stubStore) UpdateEventStatus(ctx context.Context, eventID string, from EventStatus, to EventStatus) error {
	event, ok := store.events[eventID]
	if !ok {
		return ErrUnknownEvent
	}
	if event.Status != from {
		return ErrInvalidEventStatus
	}
	event.Status = to
	store.events[eventID] = event
	return nil
}

func (store *stubStore) ListDueEvents(ctx context.Context, status EventStatus, nowUnixUTC int64) ([]Event, error) {
	var out []Event
	for _, event := range store.events {
		if event.Status != status {
			continue
		}
		switch status {
		case EventScheduled:
			if event.OpensAtUnixUTC <= nowUnixUTC {
				out = append(out, event)
			}
		case EventOpen:
			if event.ClosesAtUnixUTC <= nowUnixUTC {
				out = append(out, event)
			}
		}
	}
	return out, nil
}

func (store *stubStore) GetEntryForUser(ctx context.Context, eventID string, userID UserID) (Entry, bool, error) {
	for _, entry := range store.entries {
		if entry.EventID == eventID && entry.UserID == userID.String() {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry Entry) error {
	for _, existing := range store.entries {
		if existing.EventID == entry.EventID && existing.ChosenNumber == entry.ChosenNumber {
			return WrapError("store", "entry", "duplicate", ErrNumberAlreadyTaken)
		}
	}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntriesByNumber(ctx context.Context, eventID string, number int) ([]Entry, error) {
	var out []Entry
	for _, entry := range store.entries {
		if entry.EventID == eventID && entry.ChosenNumber == number {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (store *stubStore) InsertDrawResults(ctx context.Context, eventID string, results []DrawResult) error {
	store.drawResults[eventID] = append([]DrawResult(nil), results...)
	sort.Slice(store.drawResults[eventID], func(i, j int) bool {
		return store.drawResults[eventID][i].Rank < store.drawResults[eventID][j].Rank
	})
	return nil
}

func (store *stubStore) ListDrawResults(ctx context.Context, eventID string) ([]DrawResult, error) {
	return append([]DrawResult(nil), store.drawResults[eventID]...), nil
}

// recordingPayouts captures payout calls and optionally fails them. A
// non-zero failures count fails that many calls before succeeding; err makes
// every call fail.
type recordingPayouts struct {
	calls    []payoutCall
	err      error
	failures int
}

type payoutCall struct {
	userID         string
	amount         int64
	spinID         string
	idempotencyKey string
}

func (payouts *recordingPayouts) PayReward(ctx context.Context, userID string, amount int64, spinID string, idempotencyKey string) error {
	payouts.calls = append(payouts.calls, payoutCall{userID: userID, amount: amount, spinID: spinID, idempotencyKey: idempotencyKey})
	if payouts.failures > 0 {
		payouts.failures--
		return errors.New("injected payout failure")
	}
	return payouts.err
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

func mustNewService(test *testing.T, store Store, now func() int64, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}
