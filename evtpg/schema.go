package evtpg

import "context"

// schemaDDL creates the fixed tables the Event Store and Unique Constraint
// Registry own (§3, §6). Unlike the teacher's genpg, which generates DDL
// from an arbitrary user-modeled dom.Schema, these tables are fixed by the
// spec, so the DDL is hand-written rather than generated.
const schemaDDL = `
CREATE SEQUENCE IF NOT EXISTS events_position_seq;

CREATE TABLE IF NOT EXISTS events (
	position          BIGINT PRIMARY KEY DEFAULT nextval('events_position_seq'),
	sequence          BIGINT NOT NULL,
	instance_id       TEXT NOT NULL,
	aggregate_type    TEXT NOT NULL,
	aggregate_id      TEXT NOT NULL,
	aggregate_version INT NOT NULL,
	event_type        TEXT NOT NULL,
	payload           JSONB NOT NULL,
	editor_user       TEXT NOT NULL DEFAULT '',
	editor_service    TEXT NOT NULL DEFAULT '',
	resource_owner    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	command_id        TEXT NOT NULL,
	UNIQUE (instance_id, aggregate_type, aggregate_id, sequence)
);
CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (instance_id, event_type);
CREATE INDEX IF NOT EXISTS events_command_id_idx ON events (command_id);

CREATE TABLE IF NOT EXISTS unique_constraints (
	instance_id  TEXT NOT NULL,
	unique_type  TEXT NOT NULL,
	unique_field TEXT NOT NULL,
	PRIMARY KEY (instance_id, unique_type, unique_field)
);

CREATE TABLE IF NOT EXISTS projection_positions (
	projection_name       TEXT NOT NULL,
	instance_id           TEXT NOT NULL,
	last_processed_position BIGINT NOT NULL DEFAULT 0,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (projection_name, instance_id)
);

CREATE TABLE IF NOT EXISTS projection_failed_events (
	projection_name  TEXT NOT NULL,
	failed_sequence  BIGINT NOT NULL,
	instance_id      TEXT NOT NULL,
	failure_count    INT NOT NULL DEFAULT 1,
	last_error       TEXT NOT NULL,
	event_type       TEXT NOT NULL,
	aggregate_type   TEXT NOT NULL,
	aggregate_id     TEXT NOT NULL,
	first_failed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	skipped          BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (projection_name, failed_sequence, instance_id)
);

CREATE TABLE IF NOT EXISTS projection_locks (
	projection_name TEXT NOT NULL,
	instance_id     TEXT NOT NULL,
	worker_id       TEXT NOT NULL,
	acquired_at     TIMESTAMPTZ NOT NULL,
	ttl_seconds     INT NOT NULL,
	PRIMARY KEY (projection_name, instance_id)
);
`

// EnsureSchema creates every table the Event Store and Unique Constraint
// Registry need, if they don't already exist. Idempotent, safe to call on
// every process start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	return err
}
