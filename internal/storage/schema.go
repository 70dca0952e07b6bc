package storage

// All timestamps are unix milliseconds.
const schema = `
-- The 'cards' table holds each flashcard and its scheduling state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '',      -- comma separated
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT 'medium',
    interval_days INTEGER NOT NULL DEFAULT 1,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    next_review INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    fingerprint TEXT NOT NULL DEFAULT '',
    source_id INTEGER,
    version INTEGER NOT NULL DEFAULT 1,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS cards_user_next ON cards(user_id, next_review);
CREATE INDEX IF NOT EXISTS cards_fingerprint ON cards(user_id, fingerprint);

-- The 'reviews' table is the append-only review history of a card.
CREATE TABLE IF NOT EXISTS reviews (
    card_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    performance INTEGER NOT NULL,

    PRIMARY KEY(card_id, seq),
    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

-- The 'sources' table tracks the markdown decks cards are imported from.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER,

    UNIQUE(user_id, path)
);

CREATE TABLE IF NOT EXISTS review_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_type TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    card_ids TEXT NOT NULL,             -- JSON array, fixed at start
    reviewed_count INTEGER NOT NULL DEFAULT 0,
    total_time_ms INTEGER NOT NULL DEFAULT 0,
    average_performance REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS session_reviews (
    session_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    performance INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,

    FOREIGN KEY(session_id) REFERENCES review_sessions(id) ON DELETE CASCADE
);
`
