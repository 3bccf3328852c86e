package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS readings (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    account              TEXT NOT NULL,
    taken_at             TEXT NOT NULL,
    usage_gb             REAL,
    total_gb             REAL,
    remaining_gb         REAL,
    usage_percentage     REAL,
    unlimited            INTEGER NOT NULL DEFAULT 0,
    sim_number           TEXT,
    raw                  TEXT
);

CREATE TABLE IF NOT EXISTS sessions (
    account              TEXT PRIMARY KEY,
    cookie_header        TEXT NOT NULL,
    xsrf_token           TEXT,
    saved_at             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_account_time ON readings(account, taken_at);
`
