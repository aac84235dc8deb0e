package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pitodoapp/core/pkg/reward"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorSubjectReward     = "reward"
	errorSubjectSpin       = "spin"
	errorSubjectEvent      = "event"
	errorSubjectEntry      = "entry"
	errorSubjectDraw       = "draw"
	constraintEntryNumber  = "uniq_entry_number"
	constraintEntryUser    = "uniq_entry_user"
	errorCodeCount         = "count"
	errorCodeMarshal       = "marshal"
	errorCodeUpdateStatus  = "update_status"
	errorCodeUpdateContact = "update_contact"
	errorCodeUpsert        = "upsert"
)

// RewardStore implements reward.Store using GORM.
type RewardStore struct {
	db *gorm.DB
}

// NewRewardStore returns a RewardStore backed by gorm.DB.
func NewRewardStore(db *gorm.DB) *RewardStore {
	return &RewardStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *RewardStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore reward.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &RewardStore{db: transaction})
	})
}

func (store *RewardStore) ListActiveRewards(ctx context.Context) ([]reward.RewardDefinition, error) {
	var rows []RewardDefinition
	err := store.db.WithContext(ctx).
		Where("active = ? AND event_id IS NULL", true).
		Order("display_order ASC, reward_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapRewardError(errorSubjectReward, errorCodeList, err)
	}
	return mapRewardDefinitions(rows), nil
}

func (store *RewardStore) GetReward(ctx context.Context, rewardID string) (reward.RewardDefinition, error) {
	var model RewardDefinition
	err := store.db.WithContext(ctx).Where("reward_id = ?", rewardID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reward.RewardDefinition{}, wrapRewardError(errorSubjectReward, errorCodeGet, reward.ErrUnknownReward)
	}
	if err != nil {
		return reward.RewardDefinition{}, wrapRewardError(errorSubjectReward, errorCodeGet, err)
	}
	return mapRewardDefinition(model), nil
}

func (store *RewardStore) UpsertReward(ctx context.Context, definition reward.RewardDefinition) error {
	var eventID *string
	if definition.EventID != "" {
		value := definition.EventID
		eventID = &value
	}
	now := time.Now().UTC()
	model := RewardDefinition{
		RewardID:     definition.RewardID,
		Title:        definition.Title,
		Type:         string(definition.Type),
		Weight:       definition.Weight,
		Amount:       definition.Amount,
		Rank:         definition.Rank,
		DisplayOrder: definition.DisplayOrder,
		Active:       definition.Active,
		EventID:      eventID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reward_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "type", "weight", "amount", "rank", "display_order", "active", "event_id", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapRewardError(errorSubjectReward, errorCodeUpsert, err)
	}
	return nil
}

func (store *RewardStore) SetRewardActive(ctx context.Context, rewardID string, active bool) error {
	result := store.db.WithContext(ctx).
		Model(&RewardDefinition{}).
		Where("reward_id = ?", rewardID).
		Updates(map[string]interface{}{"active": active, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapRewardError(errorSubjectReward, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapRewardError(errorSubjectReward, errorCodeUpdate, reward.ErrUnknownReward)
	}
	return nil
}

func (store *RewardStore) ListEventRewards(ctx context.Context, eventID string) ([]reward.RewardDefinition, error) {
	var rows []RewardDefinition
	err := store.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapRewardError(errorSubjectReward, errorCodeList, err)
	}
	return mapRewardDefinitions(rows), nil
}

func (store *RewardStore) GetSpinByKey(ctx context.Context, userID reward.UserID, key reward.IdempotencyKey) (reward.SpinLog, bool, error) {
	var model SpinLog
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID.String(), key.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reward.SpinLog{}, false, nil
	}
	if err != nil {
		return reward.SpinLog{}, false, wrapRewardError(errorSubjectSpin, errorCodeLookup, err)
	}
	mapped, err := mapSpinLog(model)
	if err != nil {
		return reward.SpinLog{}, false, wrapRewardError(errorSubjectSpin, errorCodeInvalid, err)
	}
	return mapped, true, nil
}

func (store *RewardStore) CountSpinsSince(ctx context.Context, userID reward.UserID, sinceUnixUTC int64) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&SpinLog{}).
		Where("user_id = ? AND created_at >= ?", userID.String(), time.Unix(sinceUnixUTC, 0).UTC()).
		Count(&count).Error
	if err != nil {
		return 0, wrapRewardError(errorSubjectSpin, errorCodeCount, err)
	}
	return count, nil
}

func (store *RewardStore) InsertSpin(ctx context.Context, log reward.SpinLog) error {
	snapshot, err := json.Marshal(log.Snapshot)
	if err != nil {
		return wrapRewardError(errorSubjectSpin, errorCodeMarshal, err)
	}
	model := SpinLog{
		SpinID:         log.SpinID,
		UserID:         log.UserID,
		RewardID:       log.RewardID,
		Status:         string(log.Status),
		IdempotencyKey: log.IdempotencyKey,
		Snapshot:       datatypes.JSON(snapshot),
		ContactName:    log.Contact.Name,
		ContactPhone:   log.Contact.Phone,
		CreatedAt:      time.Unix(log.CreatedUnixUTC, 0).UTC(),
	}
	createErr := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(createErr) {
		return wrapRewardError(errorSubjectSpin, errorCodeDuplicate, reward.ErrInvalidIdempotencyKey)
	}
	if createErr != nil {
		return wrapRewardError(errorSubjectSpin, errorCodeInsert, createErr)
	}
	return nil
}

func (store *RewardStore) UpdateSpinStatus(ctx context.Context, spinID string, from reward.SpinStatus, to reward.SpinStatus) error {
	result := store.db.WithContext(ctx).
		Model(&SpinLog{}).
		Where("spin_id = ? AND status = ?", spinID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return wrapRewardError(errorSubjectSpin, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapRewardError(errorSubjectSpin, errorCodeUpdateStatus, reward.ErrUnknownSpin)
	}
	return nil
}

func (store *RewardStore) UpdateSpinContact(ctx context.Context, spinID string, userID reward.UserID, contact reward.ContactInfo) (reward.SpinLog, error) {
	var model SpinLog
	err := store.db.WithContext(ctx).
		Where("spin_id = ? AND user_id = ?", spinID, userID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reward.SpinLog{}, wrapRewardError(errorSubjectSpin, errorCodeGet, reward.ErrUnknownSpin)
	}
	if err != nil {
		return reward.SpinLog{}, wrapRewardError(errorSubjectSpin, errorCodeGet, err)
	}
	if model.Status != string(reward.SpinPendingContact) {
		return reward.SpinLog{}, wrapRewardError(errorSubjectSpin, errorCodeUpdateContact, reward.ErrSpinNotPending)
	}
	updateErr := store.db.WithContext(ctx).
		Model(&SpinLog{}).
		Where("spin_id = ?", spinID).
		Updates(map[string]interface{}{"contact_name": contact.Name, "contact_phone": contact.Phone}).Error
	if updateErr != nil {
		return reward.SpinLog{}, wrapRewardError(errorSubjectSpin, errorCodeUpdateContact, updateErr)
	}
	model.ContactName = contact.Name
	model.ContactPhone = contact.Phone
	mapped, err := mapSpinLog(model)
	if err != nil {
		return reward.SpinLog{}, wrapRewardError(errorSubjectSpin, errorCodeInvalid, err)
	}
	return mapped, nil
}

func (store *RewardStore) CreateEvent(ctx context.Context, event reward.Event) error {
	now := time.Now().UTC()
	model := LotteryEvent{
		EventID:   event.EventID,
		Title:     event.Title,
		Status:    string(event.Status),
		OpensAt:   time.Unix(event.OpensAtUnixUTC, 0).UTC(),
		ClosesAt:  time.Unix(event.ClosesAtUnixUTC, 0).UTC(),
		MinNumber: event.MinNumber,
		MaxNumber: event.MaxNumber,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return wrapRewardError(errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

func (store *RewardStore) GetEvent(ctx context.Context, eventID string) (reward.Event, error) {
	var model LotteryEvent
	err := store.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reward.Event{}, wrapRewardError(errorSubjectEvent, errorCodeGet, reward.ErrUnknownEvent)
	}
	if err != nil {
		return reward.Event{}, wrapRewardError(errorSubjectEvent, errorCodeGet, err)
	}
	mapped, err := mapEvent(model)
	if err != nil {
		return reward.Event{}, wrapRewardError(errorSubjectEvent, errorCodeInvalid, err)
	}
	return mapped, nil
}

func (store *RewardStore) UpdateEventStatus(ctx context.Context, eventID string, from reward.EventStatus, to reward.EventStatus) error {
	result := store.db.WithContext(ctx).
		Model(&LotteryEvent{}).
		Where("event_id = ? AND status = ?", eventID, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapRewardError(errorSubjectEvent, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected != 0 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&LotteryEvent{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
		return wrapRewardError(errorSubjectEvent, errorCodeLookup, err)
	}
	if count == 0 {
		return wrapRewardError(errorSubjectEvent, errorCodeUpdateStatus, reward.ErrUnknownEvent)
	}
	return wrapRewardError(errorSubjectEvent, errorCodeUpdateStatus, reward.ErrInvalidEventStatus)
}

func (store *RewardStore) ListDueEvents(ctx context.Context, status reward.EventStatus, nowUnixUTC int64) ([]reward.Event, error) {
	now := time.Unix(nowUnixUTC, 0).UTC()
	query := store.db.WithContext(ctx).Where("status = ?", string(status))
	switch status {
	case reward.EventScheduled:
		query = query.Where("opens_at <= ?", now)
	case reward.EventOpen:
		query = query.Where("closes_at <= ?", now)
	}
	var rows []LotteryEvent
	if err := query.Order("event_id ASC").Find(&rows).Error; err != nil {
		return nil, wrapRewardError(errorSubjectEvent, errorCodeList, err)
	}
	events := make([]reward.Event, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapEvent(row)
		if err != nil {
			return nil, wrapRewardError(errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, mapped)
	}
	return events, nil
}

func (store *RewardStore) GetEntryForUser(ctx context.Context, eventID string, userID reward.UserID) (reward.Entry, bool, error) {
	var model LotteryEntry
	err := store.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reward.Entry{}, false, nil
	}
	if err != nil {
		return reward.Entry{}, false, wrapRewardError(errorSubjectEntry, errorCodeLookup, err)
	}
	return mapEntry(model), true, nil
}

func (store *RewardStore) InsertEntry(ctx context.Context, entry reward.Entry) error {
	model := LotteryEntry{
		EntryID:        entry.EntryID,
		EventID:        entry.EventID,
		UserID:         entry.UserID,
		ChosenNumber:   entry.ChosenNumber,
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return store.classifyEntryConflict(ctx, entry, err)
	}
	if err != nil {
		return wrapRewardError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

// classifyEntryConflict decides which of the two unique constraints lost the
// race. Postgres names the constraint; SQLite needs a lookup.
func (store *RewardStore) classifyEntryConflict(ctx context.Context, entry reward.Entry, cause error) error {
	switch constraintName(cause) {
	case constraintEntryNumber:
		return wrapRewardError(errorSubjectEntry, errorCodeDuplicate, reward.ErrNumberAlreadyTaken)
	case constraintEntryUser:
		return wrapRewardError(errorSubjectEntry, errorCodeDuplicate, reward.ErrAlreadyRegistered)
	}
	var count int64
	err := store.db.WithContext(ctx).
		Model(&LotteryEntry{}).
		Where("event_id = ? AND chosen_number = ?", entry.EventID, entry.ChosenNumber).
		Count(&count).Error
	if err != nil {
		return wrapRewardError(errorSubjectEntry, errorCodeLookup, err)
	}
	if count > 0 {
		return wrapRewardError(errorSubjectEntry, errorCodeDuplicate, reward.ErrNumberAlreadyTaken)
	}
	return wrapRewardError(errorSubjectEntry, errorCodeDuplicate, reward.ErrAlreadyRegistered)
}

func (store *RewardStore) ListEntriesByNumber(ctx context.Context, eventID string, number int) ([]reward.Entry, error) {
	var rows []LotteryEntry
	err := store.db.WithContext(ctx).
		Where("event_id = ? AND chosen_number = ?", eventID, number).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapRewardError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]reward.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapEntry(row))
	}
	return entries, nil
}

func (store *RewardStore) InsertDrawResults(ctx context.Context, eventID string, results []reward.DrawResult) error {
	now := time.Now().UTC()
	models := make([]LotteryDrawResult, 0, len(results))
	for _, result := range results {
		models = append(models, LotteryDrawResult{
			EventID:       eventID,
			Rank:          result.Rank,
			WinningNumber: result.WinningNumber,
			CreatedAt:     now,
		})
	}
	err := store.db.WithContext(ctx).Create(&models).Error
	if err != nil {
		return wrapRewardError(errorSubjectDraw, errorCodeInsert, err)
	}
	return nil
}

func (store *RewardStore) ListDrawResults(ctx context.Context, eventID string) ([]reward.DrawResult, error) {
	var rows []LotteryDrawResult
	err := store.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapRewardError(errorSubjectDraw, errorCodeList, err)
	}
	results := make([]reward.DrawResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, reward.DrawResult{
			EventID:       row.EventID,
			Rank:          row.Rank,
			WinningNumber: row.WinningNumber,
		})
	}
	return results, nil
}

func wrapRewardError(subject string, code string, err error) error {
	return reward.WrapError(errorOperationStore, subject, code, err)
}

func mapRewardDefinition(model RewardDefinition) reward.RewardDefinition {
	definition := reward.RewardDefinition{
		RewardID:     model.RewardID,
		Title:        model.Title,
		Type:         reward.RewardType(model.Type),
		Weight:       model.Weight,
		Amount:       model.Amount,
		Rank:         model.Rank,
		DisplayOrder: model.DisplayOrder,
		Active:       model.Active,
	}
	if model.EventID != nil {
		definition.EventID = *model.EventID
	}
	return definition
}

func mapRewardDefinitions(models []RewardDefinition) []reward.RewardDefinition {
	definitions := make([]reward.RewardDefinition, 0, len(models))
	for _, model := range models {
		definitions = append(definitions, mapRewardDefinition(model))
	}
	return definitions
}

func mapSpinLog(model SpinLog) (reward.SpinLog, error) {
	status, err := reward.ParseSpinStatus(model.Status)
	if err != nil {
		return reward.SpinLog{}, err
	}
	var snapshot reward.RewardSnapshot
	if len(model.Snapshot) > 0 {
		if err := json.Unmarshal(model.Snapshot, &snapshot); err != nil {
			return reward.SpinLog{}, err
		}
	}
	return reward.SpinLog{
		SpinID:         model.SpinID,
		UserID:         model.UserID,
		RewardID:       model.RewardID,
		Status:         status,
		IdempotencyKey: model.IdempotencyKey,
		Snapshot:       snapshot,
		Contact:        reward.ContactInfo{Name: model.ContactName, Phone: model.ContactPhone},
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapEvent(model LotteryEvent) (reward.Event, error) {
	status, err := reward.ParseEventStatus(model.Status)
	if err != nil {
		return reward.Event{}, err
	}
	return reward.Event{
		EventID:         model.EventID,
		Title:           model.Title,
		Status:          status,
		OpensAtUnixUTC:  model.OpensAt.Unix(),
		ClosesAtUnixUTC: model.ClosesAt.Unix(),
		MinNumber:       model.MinNumber,
		MaxNumber:       model.MaxNumber,
	}, nil
}

func mapEntry(model LotteryEntry) reward.Entry {
	return reward.Entry{
		EntryID:        model.EntryID,
		EventID:        model.EventID,
		UserID:         model.UserID,
		ChosenNumber:   model.ChosenNumber,
		IdempotencyKey: model.IdempotencyKey,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}
