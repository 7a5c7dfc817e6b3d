package projection

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// positionRow mirrors evtpg's projection_positions table (§3, §6). Kept as
// a plain struct with explicit table name rather than gorm.Model since the
// table's primary key is composite, not a surrogate id.
type positionRow struct {
	ProjectionName        string    `gorm:"column:projection_name;primaryKey"`
	InstanceID            string    `gorm:"column:instance_id;primaryKey"`
	LastProcessedPosition int64     `gorm:"column:last_processed_position"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`
}

func (positionRow) TableName() string { return "projection_positions" }

// failedEventRow mirrors evtpg's projection_failed_events table.
type failedEventRow struct {
	ProjectionName string    `gorm:"column:projection_name;primaryKey"`
	FailedSequence int64     `gorm:"column:failed_sequence;primaryKey"`
	InstanceID     string    `gorm:"column:instance_id;primaryKey"`
	FailureCount   int       `gorm:"column:failure_count"`
	LastError      string    `gorm:"column:last_error"`
	EventType      string    `gorm:"column:event_type"`
	AggregateType  string    `gorm:"column:aggregate_type"`
	AggregateID    string    `gorm:"column:aggregate_id"`
	FirstFailedAt  time.Time `gorm:"column:first_failed_at"`
	LastFailedAt   time.Time `gorm:"column:last_failed_at"`
	Skipped        bool      `gorm:"column:skipped"`
}

func (failedEventRow) TableName() string { return "projection_failed_events" }

// lockRow mirrors evtpg's projection_locks table.
type lockRow struct {
	ProjectionName string    `gorm:"column:projection_name;primaryKey"`
	InstanceID     string    `gorm:"column:instance_id;primaryKey"`
	WorkerID       string    `gorm:"column:worker_id"`
	AcquiredAt     time.Time `gorm:"column:acquired_at"`
	TTLSeconds     int       `gorm:"column:ttl_seconds"`
}

func (lockRow) TableName() string { return "projection_locks" }

func lastProcessedPosition(ctx context.Context, db *gorm.DB, projection, instanceID string) (int64, error) {
	var row positionRow
	err := db.WithContext(ctx).Where("projection_name = ? AND instance_id = ?", projection, instanceID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.LastProcessedPosition, nil
}

// advancePosition records position as last-processed, but never moves the
// tracked value backward: the retry sweep can succeed on an old failed
// event after the tail has already passed it (best-effort mode, see
// DESIGN.md's failed-event tail decision), and that must not rewind
// last_processed_position for the main loop.
func advancePosition(ctx context.Context, tx *gorm.DB, projection, instanceID string, position int64) error {
	now := time.Now().UTC()
	return tx.WithContext(ctx).Exec(`
		INSERT INTO projection_positions (projection_name, instance_id, last_processed_position, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (projection_name, instance_id) DO UPDATE
		SET last_processed_position = GREATEST(projection_positions.last_processed_position, EXCLUDED.last_processed_position),
		    updated_at = EXCLUDED.updated_at
	`, projection, instanceID, position, now).Error
}

func clearFailedEvent(ctx context.Context, tx *gorm.DB, projection string, sequence int64, instanceID string) error {
	return tx.WithContext(ctx).
		Where("projection_name = ? AND failed_sequence = ? AND instance_id = ?", projection, sequence, instanceID).
		Delete(&failedEventRow{}).Error
}

// recordFailure inserts or increments the failed-event row for one poisoned
// event (§4.4's "insert or increment the failed-event record").
func recordFailure(ctx context.Context, db *gorm.DB, projection string, sequence int64, instanceID, eventType, aggregateType, aggregateID, errMsg string) error {
	now := time.Now().UTC()
	var row failedEventRow
	err := db.WithContext(ctx).
		Where("projection_name = ? AND failed_sequence = ? AND instance_id = ?", projection, sequence, instanceID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		row = failedEventRow{
			ProjectionName: projection, FailedSequence: sequence, InstanceID: instanceID,
			FailureCount: 1, LastError: errMsg, EventType: eventType,
			AggregateType: aggregateType, AggregateID: aggregateID,
			FirstFailedAt: now, LastFailedAt: now,
		}
		return db.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}
	row.FailureCount++
	row.LastError = errMsg
	row.LastFailedAt = now
	return db.WithContext(ctx).Save(&row).Error
}

func listFailedEvents(ctx context.Context, db *gorm.DB, projection, instanceID string) ([]failedEventRow, error) {
	var rows []failedEventRow
	err := db.WithContext(ctx).
		Where("projection_name = ? AND instance_id = ? AND skipped = false", projection, instanceID).
		Order("failed_sequence").Find(&rows).Error
	return rows, err
}

// markSkipped permanently marks a failed event as operator-resolved
// without re-attempting it (resolve_failed_event, §4.4).
func markSkipped(ctx context.Context, db *gorm.DB, projection string, sequence int64, instanceID string) error {
	return db.WithContext(ctx).Model(&failedEventRow{}).
		Where("projection_name = ? AND failed_sequence = ? AND instance_id = ?", projection, sequence, instanceID).
		Update("skipped", true).Error
}

// tryAcquireLock claims the (projection, instance) lock if unheld or
// expired, returning true on success (§4.4 step 1).
func tryAcquireLock(ctx context.Context, db *gorm.DB, projection, instanceID, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	var row lockRow
	err := db.WithContext(ctx).Where("projection_name = ? AND instance_id = ?", projection, instanceID).First(&row).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		row = lockRow{ProjectionName: projection, InstanceID: instanceID, WorkerID: workerID, AcquiredAt: now, TTLSeconds: int(ttl.Seconds())}
		if err := db.WithContext(ctx).Create(&row).Error; err != nil {
			return false, nil // lost the race to another worker
		}
		return true, nil
	case err != nil:
		return false, err
	}
	expiry := row.AcquiredAt.Add(time.Duration(row.TTLSeconds) * time.Second)
	if now.Before(expiry) && row.WorkerID != workerID {
		return false, nil
	}
	// Steal conditionally on the acquired_at value we just observed: two
	// workers racing to steal the same expired lock both read the same row,
	// but only one of their UPDATEs can still match it, so only one steals.
	res := db.WithContext(ctx).Model(&lockRow{}).
		Where("projection_name = ? AND instance_id = ? AND acquired_at = ?", projection, instanceID, row.AcquiredAt).
		Updates(map[string]interface{}{"worker_id": workerID, "acquired_at": now, "ttl_seconds": int(ttl.Seconds())})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// renewLock extends a held lock's TTL window; called mid-batch when close
// to expiry (§4.4 step 5).
func renewLock(ctx context.Context, db *gorm.DB, projection, instanceID, workerID string, ttl time.Duration) error {
	return db.WithContext(ctx).Model(&lockRow{}).
		Where("projection_name = ? AND instance_id = ? AND worker_id = ?", projection, instanceID, workerID).
		Updates(map[string]interface{}{"acquired_at": time.Now().UTC(), "ttl_seconds": int(ttl.Seconds())}).Error
}

// releaseLock drops the lock row entirely so the next worker can acquire
// it immediately instead of waiting out the TTL.
func releaseLock(ctx context.Context, db *gorm.DB, projection, instanceID, workerID string) error {
	return db.WithContext(ctx).
		Where("projection_name = ? AND instance_id = ? AND worker_id = ?", projection, instanceID, workerID).
		Delete(&lockRow{}).Error
}
