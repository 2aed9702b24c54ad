package database

// sqliteSchema creates the moderation tables. Table and column names are kept
// from the legacy bot so existing database files open unchanged.
var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS moderationLogs (
	serverId  TEXT    NOT NULL,
	caseId    INTEGER NOT NULL,
	modId     TEXT    NOT NULL,
	userId    TEXT    NOT NULL,
	type      TEXT    NOT NULL,
	reason    TEXT,
	timeout   INTEGER,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (serverId, caseId)
)`, `
CREATE INDEX IF NOT EXISTS idx_moderationLogs_user
	ON moderationLogs (serverId, userId, type)`, `
CREATE TABLE IF NOT EXISTS moderationTimeouts (
	serverId TEXT    NOT NULL,
	userId   TEXT    NOT NULL,
	type     TEXT    NOT NULL,
	endTime  INTEGER NOT NULL,
	timerId  INTEGER NOT NULL,
	PRIMARY KEY (serverId, userId, type)
)`, `
CREATE TABLE IF NOT EXISTS moderationWarnSettings (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	serverId TEXT    NOT NULL,
	numWarns INTEGER NOT NULL,
	type     TEXT    NOT NULL,
	duration INTEGER
)`, `
CREATE INDEX IF NOT EXISTS idx_moderationWarnSettings_server
	ON moderationWarnSettings (serverId, numWarns)`, `
CREATE TABLE IF NOT EXISTS moderationSettings (
	serverId  TEXT PRIMARY KEY,
	channelId TEXT
)`,
}
