package missions

// Schema contains the DDL for the mission tables. Missions are an
// ordered list per issuer, addressed by (issuer, idx); the UUID primary
// key stays stable across reindexing so in-flight content updates can
// detect a concurrent delete.
const Schema = `
CREATE TABLE IF NOT EXISTS missions (
    id           TEXT PRIMARY KEY,
    issuer       TEXT NOT NULL,
    idx          INTEGER NOT NULL,
    type         TEXT NOT NULL,
    url          TEXT NOT NULL,
    last_content TEXT,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    UNIQUE (issuer, idx)
);
CREATE INDEX IF NOT EXISTS idx_missions_issuer ON missions(issuer, idx);

-- Ordered replacement rules; seq is the application order.
CREATE TABLE IF NOT EXISTS replacers (
    mission_id    TEXT NOT NULL,
    seq           INTEGER NOT NULL,
    source        TEXT NOT NULL,
    flags         TEXT NOT NULL DEFAULT 'g',
    replace_value TEXT NOT NULL DEFAULT '$1',
    PRIMARY KEY (mission_id, seq),
    FOREIGN KEY (mission_id) REFERENCES missions(id) ON DELETE CASCADE
);
`
