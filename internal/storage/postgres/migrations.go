package postgres

// migrations contains the database schema migrations, applied in order and
// each idempotent via IF NOT EXISTS so Connect can run them on every start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS networks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		schema_doc TEXT NOT NULL,
		fetch_before_send BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	`CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		can_create BOOLEAN NOT NULL DEFAULT FALSE,
		can_read BOOLEAN NOT NULL DEFAULT FALSE,
		can_update BOOLEAN NOT NULL DEFAULT FALSE,
		can_delete BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		head JSONB,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_records_deleted_id ON records(deleted, id)`,

	`CREATE TABLE IF NOT EXISTS remotes (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		remote_id TEXT NOT NULL,
		UNIQUE (node_id, remote_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_remotes_node_record ON remotes(node_id, record_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		parent_id TEXT REFERENCES messages(id) ON DELETE SET NULL,
		origin_id TEXT REFERENCES nodes(id) ON DELETE SET NULL,
		destination_id TEXT REFERENCES nodes(id) ON DELETE SET NULL,
		ts TIMESTAMPTZ NOT NULL,
		method TEXT NOT NULL,
		payload JSONB,
		record_id TEXT NOT NULL DEFAULT '',
		remote_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_dest_state_ts ON messages(destination_id, state, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_record ON messages(record_id)`,

	`CREATE TABLE IF NOT EXISTS changes (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		ts TIMESTAMPTZ NOT NULL,
		state TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_changes_message ON changes(message_id, ts)`,

	`CREATE TABLE IF NOT EXISTS errors (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		ts TIMESTAMPTZ NOT NULL,
		text TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_errors_message ON errors(message_id, ts)`,
}
