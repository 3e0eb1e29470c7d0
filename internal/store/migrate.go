package store

import "database/sql"

// schema creates every table the server needs if absent. Column additions
// in later revisions must be appended as their own ALTER TABLE statement
// guarded by a no-op check, never by rewriting an existing CREATE TABLE,
// so that upgrading an existing database file never loses data.
const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	qty           REAL NOT NULL,
	entry_price   REAL NOT NULL,
	entry_time    INTEGER NOT NULL,
	leverage      INTEGER NOT NULL,
	fees_open     REAL NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	sl            REAL,
	tp            REAL,
	status        TEXT NOT NULL,
	close_price   REAL,
	close_time    INTEGER,
	fees_close    REAL,
	realized_pnl  REAL,
	funding_pnl   REAL
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);

CREATE TABLE IF NOT EXISTS fills (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	position_id INTEGER NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	price       REAL NOT NULL,
	qty         REAL NOT NULL,
	fee         REAL NOT NULL,
	ts          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_position_id ON fills(position_id);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	position_id INTEGER NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
	event       TEXT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	ts          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_position_id ON events(position_id);

CREATE TABLE IF NOT EXISTS settings (
	id                        INTEGER PRIMARY KEY CHECK (id = 1),
	taker_fee                 REAL NOT NULL,
	maker_fee                 REAL NOT NULL,
	enable_funding            INTEGER NOT NULL,
	base_balance              REAL NOT NULL,
	default_stop_loss_percent REAL NOT NULL,
	default_take_profit_percent REAL NOT NULL,
	number_format             TEXT NOT NULL DEFAULT 'standard',
	timezone                  TEXT NOT NULL DEFAULT 'UTC'
);
`

// Migrate creates the schema if it does not yet exist. It is safe to call
// on every startup.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
