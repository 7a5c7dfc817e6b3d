package evtpg

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerid/core/evt"
	"github.com/ledgerid/core/ierr"
)

// buildQuery translates a Filter into the parameterized SQL of §4.1.
func buildQuery(f evt.Filter) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	add("position >= $%d", f.FromPosition)
	if f.ToPosition != nil {
		add("position <= $%d", *f.ToPosition)
	}
	addSet := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		args = append(args, vals)
		where = append(where, fmt.Sprintf("%s = ANY($%d)", col, len(args)))
	}
	addSet("instance_id", f.InstanceIDs)
	addSet("aggregate_type", f.AggregateTypes)
	addSet("aggregate_id", f.AggregateIDs)
	addSet("event_type", f.EventTypes)
	addSet("editor_user", f.EditorUsers)

	order := "position ASC"
	if f.Desc {
		order = "position DESC"
	}
	q := fmt.Sprintf(`
		SELECT position, sequence, instance_id, aggregate_type, aggregate_id, aggregate_version,
		       event_type, payload, editor_user, editor_service, resource_owner, created_at, command_id
		FROM events
		WHERE %s
		ORDER BY %s`, strings.Join(where, " AND "), order)
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return q, args
}

func scanEvents(rows pgx.Rows) ([]*evt.Event, error) {
	var out []*evt.Event
	for rows.Next() {
		ev := &evt.Event{}
		err := rows.Scan(
			&ev.Position, &ev.Sequence, &ev.InstanceID, &ev.AggregateType, &ev.AggregateID,
			&ev.AggregateVersion, &ev.EventType, &ev.Payload, &ev.EditorUser, &ev.EditorService,
			&ev.ResourceOwner, &ev.CreatedAt, &ev.CommandID,
		)
		if err != nil {
			return nil, ierr.Wrap(ierr.TransientStorage, err, "scanning event row")
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Wrap(ierr.TransientStorage, err, "iterating event rows")
	}
	return out, nil
}
