package journal

// Schema creates the journal tables. Every pipeline result lands in
// decisions; realized positions also land in trades.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	price REAL NOT NULL,
	confidence REAL NOT NULL,
	notional REAL NOT NULL,
	category TEXT NOT NULL,
	reason TEXT NOT NULL,
	order_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(time);

CREATE TABLE IF NOT EXISTS trades (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	cost REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	realized_pnl REAL NOT NULL,
	return_pct REAL NOT NULL,
	exit_type TEXT NOT NULL
);
`
