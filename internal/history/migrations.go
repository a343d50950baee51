package history

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    profile TEXT NOT NULL,
    evaluated_at TIMESTAMP NOT NULL,
    last_attempted INTEGER NOT NULL,
    newest INTEGER NOT NULL,
    age_ns INTEGER NOT NULL,
    stable_marker INTEGER NOT NULL,
    last_manifest_change INTEGER NOT NULL,
    provisional BOOLEAN NOT NULL,
    build BOOLEAN NOT NULL,
    reasons TEXT
);

CREATE INDEX IF NOT EXISTS idx_evaluations_profile ON evaluations(profile, evaluated_at);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    profile TEXT NOT NULL,
    branch TEXT,
    old_value TEXT,
    new_value TEXT,
    status TEXT NOT NULL,
    stage TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_profile ON runs(profile, started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`
