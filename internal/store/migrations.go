package store

// migrations is applied in order, each wrapped in its own transaction.
// Numbered rather than timestamped: this is a single-binary personal tool,
// not a multi-developer service, so migration collisions aren't a concern
// (grounded on nevindra-oasis store/sqlite/sqlite.go's numbered Init() DDL
// list).
var migrations = []migration{
	{
		version: 1,
		ddl: []string{
			`CREATE TABLE memory_chunks (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				heading TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				owner TEXT NOT NULL DEFAULT '',
				scope_kind TEXT NOT NULL DEFAULT 'global',
				scope_id TEXT NOT NULL DEFAULT '',
				evergreen INTEGER NOT NULL DEFAULT 0,
				embedding BLOB,
				created_at_ms INTEGER NOT NULL,
				updated_at_ms INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_memory_chunks_scope ON memory_chunks(scope_kind, scope_id)`,
			`CREATE INDEX idx_memory_chunks_source ON memory_chunks(source)`,

			// FTS5 external-content table mirrors memory_chunks.heading and
			// content for keyword search; triggers keep it in sync (spec.md §4.5).
			`CREATE VIRTUAL TABLE memory_chunks_fts USING fts5(
				heading,
				content,
				content='memory_chunks',
				content_rowid='rowid'
			)`,
			`CREATE TRIGGER memory_chunks_ai AFTER INSERT ON memory_chunks BEGIN
				INSERT INTO memory_chunks_fts(rowid, heading, content) VALUES (new.rowid, new.heading, new.content);
			END`,
			`CREATE TRIGGER memory_chunks_ad AFTER DELETE ON memory_chunks BEGIN
				INSERT INTO memory_chunks_fts(memory_chunks_fts, rowid, heading, content) VALUES ('delete', old.rowid, old.heading, old.content);
			END`,
			`CREATE TRIGGER memory_chunks_au AFTER UPDATE ON memory_chunks BEGIN
				INSERT INTO memory_chunks_fts(memory_chunks_fts, rowid, heading, content) VALUES ('delete', old.rowid, old.heading, old.content);
				INSERT INTO memory_chunks_fts(rowid, heading, content) VALUES (new.rowid, new.heading, new.content);
			END`,
		},
	},
	{
		version: 2,
		ddl: []string{
			`CREATE TABLE learner_records (
				id TEXT PRIMARY KEY,
				session_key TEXT NOT NULL,
				task_summary TEXT NOT NULL,
				tools_used TEXT NOT NULL DEFAULT '[]',
				iterations INTEGER NOT NULL,
				tool_calls INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				success INTEGER NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				created_at_ms INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_learner_records_created ON learner_records(created_at_ms)`,
		},
	},
	{
		version: 3,
		ddl: []string{
			`CREATE TABLE cron_jobs (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				schedule_kind TEXT NOT NULL,
				schedule_expr TEXT NOT NULL,
				timezone TEXT NOT NULL DEFAULT 'UTC',
				prompt TEXT NOT NULL,
				channel TEXT NOT NULL,
				chat_id TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				consecutive_errors INTEGER NOT NULL DEFAULT 0,
				next_run_ms INTEGER NOT NULL,
				last_run_ms INTEGER NOT NULL DEFAULT 0,
				created_at_ms INTEGER NOT NULL,
				updated_at_ms INTEGER NOT NULL
			)`,
			`CREATE TABLE cron_runs (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL REFERENCES cron_jobs(id) ON DELETE CASCADE,
				started_at_ms INTEGER NOT NULL,
				finished_at_ms INTEGER NOT NULL DEFAULT 0,
				success INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_cron_runs_job ON cron_runs(job_id)`,
		},
	},
}
