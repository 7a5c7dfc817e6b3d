// Package users is a worked example projection (§8's scenarios) reducing
// the user aggregate's events into a queryable read-model table.
// Registered with StrictOrder: true so a poisoned event demonstrates the
// halting behavior §4.4 describes rather than the default skip-ahead one.
package users

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ledgerid/core/aggregates/user"
	"github.com/ledgerid/core/evt"
)

const Name = "users"

// Row is the users projection's read-model table.
type Row struct {
	InstanceID string    `gorm:"column:instance_id;primaryKey"`
	UserID     string    `gorm:"column:user_id;primaryKey"`
	Username   string    `gorm:"column:username;index"`
	Email      string    `gorm:"column:email;index"`
	State      string    `gorm:"column:state;index"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (Row) TableName() string { return "projection_users" }

// Definition implements projection.Definition for the users read-model.
type Definition struct{}

func (Definition) Name() string             { return Name }
func (Definition) AggregateTypes() []string { return []string{user.AggregateType} }
func (Definition) EventTypes() []string     { return user.EventTypes }
func (Definition) StrictOrder() bool        { return true }

func (Definition) EnsureSchema(db *gorm.DB) error {
	return db.AutoMigrate(&Row{})
}

type humanAddedPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type emailChangedPayload struct {
	Email string `json:"email"`
}

// Reduce applies one user event via an idempotent upsert keyed by
// (instance_id, user_id), tolerating at-least-once redelivery (§4.4).
func (Definition) Reduce(ctx context.Context, tx *gorm.DB, ev *evt.Event) error {
	now := time.Now().UTC()
	switch ev.EventType {
	case user.EventHumanAdded:
		var p humanAddedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		row := Row{
			InstanceID: ev.InstanceID, UserID: ev.AggregateID,
			Username: p.Username, Email: p.Email, State: "active", UpdatedAt: now,
		}
		return tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "email", "state", "updated_at"}),
		}).Create(&row).Error
	case user.EventEmailChanged:
		var p emailChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&Row{}).
			Where("instance_id = ? AND user_id = ?", ev.InstanceID, ev.AggregateID).
			Updates(map[string]interface{}{"email": p.Email, "updated_at": now}).Error
	case user.EventDeactivated:
		return setState(ctx, tx, ev, "inactive", now)
	case user.EventReactivated:
		return setState(ctx, tx, ev, "active", now)
	case user.EventRemoved:
		return tx.WithContext(ctx).
			Where("instance_id = ? AND user_id = ?", ev.InstanceID, ev.AggregateID).
			Delete(&Row{}).Error
	}
	return nil
}

func setState(ctx context.Context, tx *gorm.DB, ev *evt.Event, state string, now time.Time) error {
	return tx.WithContext(ctx).Model(&Row{}).
		Where("instance_id = ? AND user_id = ?", ev.InstanceID, ev.AggregateID).
		Updates(map[string]interface{}{"state": state, "updated_at": now}).Error
}
