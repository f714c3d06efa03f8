// internal/db/migrations.go
package db

import "fmt"

const authSchema = `
CREATE TABLE IF NOT EXISTS auth_users (
    id                    TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
    email                 TEXT UNIQUE NOT NULL,
    encrypted_password    TEXT NOT NULL,
    last_sign_in_at       TEXT,
    raw_user_meta_data    TEXT DEFAULT '{}' CHECK (json_valid(raw_user_meta_data)),
    role                  TEXT DEFAULT 'authenticated',
    created_at            TEXT DEFAULT (datetime('now')),
    updated_at            TEXT DEFAULT (datetime('now')),
    banned_until          TEXT,
    deleted_at            TEXT
);

CREATE INDEX IF NOT EXISTS idx_auth_users_email ON auth_users(email);

CREATE TABLE IF NOT EXISTS auth_sessions (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT,
    not_after     TEXT
);

CREATE INDEX IF NOT EXISTS idx_auth_sessions_user_id ON auth_sessions(user_id);

CREATE TABLE IF NOT EXISTS auth_refresh_tokens (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    token       TEXT UNIQUE NOT NULL,
    user_id     TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    session_id  TEXT REFERENCES auth_sessions(id) ON DELETE CASCADE,
    revoked     INTEGER DEFAULT 0,
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_auth_refresh_tokens_token ON auth_refresh_tokens(token);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_tokens_session_id ON auth_refresh_tokens(session_id);
`

const profileSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id            TEXT PRIMARY KEY REFERENCES auth_users(id) ON DELETE CASCADE,
    display_name       TEXT NOT NULL DEFAULT '',
    bio                TEXT NOT NULL DEFAULT '',
    native_language    TEXT NOT NULL DEFAULT '',
    learning_language  TEXT NOT NULL DEFAULT '',
    location           TEXT NOT NULL DEFAULT '',
    avatar_url         TEXT,
    last_seen_at       TEXT,
    created_at         TEXT DEFAULT (datetime('now')),
    updated_at         TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_profiles_native_language ON profiles(native_language);
CREATE INDEX IF NOT EXISTS idx_profiles_learning_language ON profiles(learning_language);
`

const friendSchema = `
CREATE TABLE IF NOT EXISTS friend_requests (
    id            TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
    sender_id     TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    recipient_id  TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    status        TEXT NOT NULL DEFAULT 'pending'
                  CHECK (status IN ('pending', 'accepted', 'declined')),
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now')),
    UNIQUE (sender_id, recipient_id)
);

CREATE INDEX IF NOT EXISTS idx_friend_requests_recipient ON friend_requests(recipient_id, status);

-- user_a < user_b so each friendship is stored exactly once.
CREATE TABLE IF NOT EXISTS friendships (
    user_a      TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    user_b      TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    created_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (user_a, user_b),
    CHECK (user_a < user_b)
);

CREATE INDEX IF NOT EXISTS idx_friendships_user_b ON friendships(user_b);
`

const chatSchema = `
-- user_a < user_b; one conversation per friend pair.
CREATE TABLE IF NOT EXISTS conversations (
    id          TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
    user_a      TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    user_b      TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    created_at  TEXT DEFAULT (datetime('now')),
    UNIQUE (user_a, user_b),
    CHECK (user_a < user_b)
);

CREATE TABLE IF NOT EXISTS messages (
    id               TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
    conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    sender_id        TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    body             TEXT NOT NULL DEFAULT '',
    attachment_url   TEXT,
    created_at       TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS call_logs (
    id               TEXT PRIMARY KEY,
    conversation_id  TEXT REFERENCES conversations(id) ON DELETE SET NULL,
    caller_id        TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    callee_id        TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    state            TEXT NOT NULL,
    reason           TEXT,
    created_at       TEXT NOT NULL,
    connected_at     TEXT,
    ended_at         TEXT
);

CREATE INDEX IF NOT EXISTS idx_call_logs_conversation ON call_logs(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_call_logs_caller ON call_logs(caller_id);
CREATE INDEX IF NOT EXISTS idx_call_logs_callee ON call_logs(callee_id);
`

// FTS5 index over message bodies, kept in sync with triggers. The messages
// table keeps its implicit rowid, which the external-content index refers to.
const searchSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    body,
    content='messages',
    content_rowid='rowid',
    tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, body) VALUES (new.rowid, new.body);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.rowid, old.body);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE OF body ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.rowid, old.body);
    INSERT INTO messages_fts(rowid, body) VALUES (new.rowid, new.body);
END;
`

func (db *DB) RunMigrations() error {
	_, err := db.Exec(authSchema)
	if err != nil {
		return fmt.Errorf("failed to run auth migrations: %w", err)
	}

	_, err = db.Exec(profileSchema)
	if err != nil {
		return fmt.Errorf("failed to run profile migrations: %w", err)
	}

	_, err = db.Exec(friendSchema)
	if err != nil {
		return fmt.Errorf("failed to run friend migrations: %w", err)
	}

	_, err = db.Exec(chatSchema)
	if err != nil {
		return fmt.Errorf("failed to run chat migrations: %w", err)
	}

	_, err = db.Exec(searchSchema)
	if err != nil {
		return fmt.Errorf("failed to run search migrations: %w", err)
	}

	return nil
}
