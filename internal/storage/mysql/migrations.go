// Package mysql provides a MySQL storage implementation.
package mysql

// migrations contains the database schema migrations, applied in order.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS networks (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		schema_doc LONGTEXT NOT NULL,
		fetch_before_send BOOLEAN NOT NULL DEFAULT TRUE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS nodes (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		can_create BOOLEAN NOT NULL DEFAULT FALSE,
		can_read BOOLEAN NOT NULL DEFAULT FALSE,
		can_update BOOLEAN NOT NULL DEFAULT FALSE,
		can_delete BOOLEAN NOT NULL DEFAULT FALSE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS records (
		id VARCHAR(64) PRIMARY KEY,
		head JSON,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		last_updated DATETIME(3) NOT NULL,
		INDEX idx_records_deleted_id (deleted, id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS remotes (
		id VARCHAR(64) PRIMARY KEY,
		node_id VARCHAR(64) NOT NULL,
		record_id VARCHAR(64) NOT NULL,
		remote_id VARCHAR(255) NOT NULL,
		UNIQUE KEY uq_remotes_node_remote (node_id, remote_id),
		INDEX idx_remotes_node_record (node_id, record_id),
		FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR(64) PRIMARY KEY,
		parent_id VARCHAR(64),
		origin_id VARCHAR(64),
		destination_id VARCHAR(64),
		ts DATETIME(3) NOT NULL,
		method VARCHAR(16) NOT NULL,
		payload JSON,
		record_id VARCHAR(64) NOT NULL DEFAULT '',
		remote_id VARCHAR(255) NOT NULL DEFAULT '',
		state VARCHAR(16) NOT NULL,
		INDEX idx_messages_dest_state_ts (destination_id, state, ts),
		INDEX idx_messages_record (record_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS changes (
		id VARCHAR(64) PRIMARY KEY,
		message_id VARCHAR(64) NOT NULL,
		ts DATETIME(3) NOT NULL,
		state VARCHAR(16) NOT NULL,
		note TEXT,
		INDEX idx_changes_message (message_id, ts),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS errors (
		id VARCHAR(64) PRIMARY KEY,
		message_id VARCHAR(64) NOT NULL,
		ts DATETIME(3) NOT NULL,
		text TEXT NOT NULL,
		INDEX idx_errors_message (message_id, ts),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}
