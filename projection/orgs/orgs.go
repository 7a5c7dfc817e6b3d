// Package orgs is the second worked example projection, registered with
// the default best-effort ordering (StrictOrder: false) so it keeps
// advancing past a poisoned event instead of halting.
package orgs

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ledgerid/core/aggregates/org"
	"github.com/ledgerid/core/evt"
)

const Name = "orgs"

// Row is the orgs projection's read-model table.
type Row struct {
	InstanceID string    `gorm:"column:instance_id;primaryKey"`
	OrgID      string    `gorm:"column:org_id;primaryKey"`
	Name       string    `gorm:"column:name;index"`
	State      string    `gorm:"column:state;index"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (Row) TableName() string { return "projection_orgs" }

// Definition implements projection.Definition for the orgs read-model.
type Definition struct{}

func (Definition) Name() string             { return Name }
func (Definition) AggregateTypes() []string { return []string{org.AggregateType} }
func (Definition) EventTypes() []string     { return org.EventTypes }
func (Definition) StrictOrder() bool        { return false }

func (Definition) EnsureSchema(db *gorm.DB) error {
	return db.AutoMigrate(&Row{})
}

type addedPayload struct {
	Name string `json:"name"`
}

type nameChangedPayload struct {
	Name string `json:"name"`
}

func (Definition) Reduce(ctx context.Context, tx *gorm.DB, ev *evt.Event) error {
	now := time.Now().UTC()
	switch ev.EventType {
	case org.EventAdded:
		var p addedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		row := Row{InstanceID: ev.InstanceID, OrgID: ev.AggregateID, Name: p.Name, State: "active", UpdatedAt: now}
		return tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "org_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "state", "updated_at"}),
		}).Create(&row).Error
	case org.EventNameChanged:
		var p nameChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&Row{}).
			Where("instance_id = ? AND org_id = ?", ev.InstanceID, ev.AggregateID).
			Updates(map[string]interface{}{"name": p.Name, "updated_at": now}).Error
	case org.EventDeactivated:
		return setState(ctx, tx, ev, "inactive", now)
	case org.EventReactivated:
		return setState(ctx, tx, ev, "active", now)
	case org.EventRemoved:
		return tx.WithContext(ctx).
			Where("instance_id = ? AND org_id = ?", ev.InstanceID, ev.AggregateID).
			Delete(&Row{}).Error
	}
	return nil
}

func setState(ctx context.Context, tx *gorm.DB, ev *evt.Event, state string, now time.Time) error {
	return tx.WithContext(ctx).Model(&Row{}).
		Where("instance_id = ? AND org_id = ?", ev.InstanceID, ev.AggregateID).
		Updates(map[string]interface{}{"state": state, "updated_at": now}).Error
}
