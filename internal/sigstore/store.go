// Package sigstore implements C3: a durable map from tool-call id to the
// opaque provider reasoning token that must be echoed on a later turn,
// backed by sqlite (modernc.org/sqlite, the pure-Go driver shared by
// haasonsaas-nexus and sacenox-symb in the reference pack — see
// DESIGN.md).
package sigstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/digitallysavvy/go-ai/internal/canon"
	"github.com/digitallysavvy/go-ai/internal/perror"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_signatures (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	signature TEXT,
	reasoning_tokens INTEGER,
	thought_signature TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS conversation_states (
	id TEXT PRIMARY KEY,
	state_json TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS schema_metadata (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

const schemaVersion = "1"

// Store wraps a *sql.DB configured for WAL mode, mirroring db.rs's
// configure_db pragmas.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a sqlite database at path, configures
// WAL mode, and runs the embedded schema bootstrap. Schema migration
// machinery beyond this embedded bootstrap is out of scope per §1.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=rwc", path))
	if err != nil {
		return nil, perror.Storage("opening signature store", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, perror.Storage("configuring signature store", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, perror.Storage("bootstrapping signature store schema", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_metadata(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, schemaVersion); err != nil {
		db.Close()
		return nil, perror.Storage("recording schema version", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save is an idempotent upsert. It is a no-op if sig carries neither a
// primary token (Blob) nor a non-empty thought signature.
func (s *Store) Save(ctx context.Context, toolCallID, conversationID string, sig canon.Signature) error {
	if sig.Blob == "" && (sig.ThoughtSignature == nil || *sig.ThoughtSignature == "") {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_signatures(id, conversation_id, signature, reasoning_tokens, thought_signature, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			signature = excluded.signature,
			reasoning_tokens = excluded.reasoning_tokens,
			thought_signature = excluded.thought_signature,
			created_at = CURRENT_TIMESTAMP
	`, toolCallID, conversationID, sig.Blob, sig.ReasoningTokens, sig.ThoughtSignature)
	if err != nil {
		return perror.Storage("saving tool signature", err)
	}
	return nil
}

// Load returns the signature for toolCallID, or ok=false if none exists.
func (s *Store) Load(ctx context.Context, toolCallID string) (canon.Signature, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, signature, reasoning_tokens, thought_signature
		 FROM tool_signatures WHERE id = ?`, toolCallID)

	var sig canon.Signature
	var reasoningTokens sql.NullInt64
	var thoughtSig sql.NullString
	sig.ToolCallID = toolCallID

	if err := row.Scan(&sig.ConversationID, &sig.Blob, &reasoningTokens, &thoughtSig); err != nil {
		if err == sql.ErrNoRows {
			return canon.Signature{}, false, nil
		}
		return canon.Signature{}, false, perror.Storage("loading tool signature", err)
	}
	if reasoningTokens.Valid {
		v := int(reasoningTokens.Int64)
		sig.ReasoningTokens = &v
	}
	if thoughtSig.Valid {
		v := thoughtSig.String
		sig.ThoughtSignature = &v
	}
	return sig, true, nil
}

// Sweep removes signature and conversation-state rows older than
// retention. Best-effort: failures are returned to the caller to log,
// never fatal to the process.
func (s *Store) Sweep(ctx context.Context, retention time.Duration) (signatures, states int64, err error) {
	threshold := time.Now().Add(-retention).UTC().Format("2006-01-02 15:04:05")

	r1, err := s.db.ExecContext(ctx, `DELETE FROM tool_signatures WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, 0, perror.Storage("sweeping tool signatures", err)
	}
	r2, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, 0, perror.Storage("sweeping conversation states", err)
	}
	signatures, _ = r1.RowsAffected()
	states, _ = r2.RowsAffected()
	return signatures, states, nil
}

// SaveConversationState persists an opaque JSON payload for cross-request
// resume (§6's conversation-state table). The pipeline's retry paths reuse
// the in-memory canonical context and do not read this table.
func (s *Store) SaveConversationState(ctx context.Context, conversationID, stateJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_states(id, state_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET state_json = excluded.state_json, updated_at = CURRENT_TIMESTAMP
	`, conversationID, stateJSON)
	if err != nil {
		return perror.Storage("saving conversation state", err)
	}
	return nil
}

// LoadConversationState returns the opaque JSON payload for
// conversationID, or ok=false if none exists.
func (s *Store) LoadConversationState(ctx context.Context, conversationID string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state_json FROM conversation_states WHERE id = ?`, conversationID)
	var stateJSON string
	if err := row.Scan(&stateJSON); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, perror.Storage("loading conversation state", err)
	}
	return stateJSON, true, nil
}
