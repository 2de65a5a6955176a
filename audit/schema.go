package audit

// Schema creates the audit trail table. Idempotent; applied by Init.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,            -- milliseconds since epoch
	action        TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	target        TEXT NOT NULL DEFAULT '',
	transport     TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	detail        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'success' CHECK(status IN ('success', 'error')),
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action, timestamp DESC);
`
