// Package history persists finished dialogue probes to PostgreSQL and
// answers room membership queries for the respond endpoint.
package history

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver

	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists probe history to PostgreSQL.
type Store struct {
	db        *sql.DB
	keepLimit int
}

// Open connects to the history database at connStr and applies pending
// migrations. keepLimit caps how many probes are retained; older rows
// are pruned on insert.
func Open(connStr string, keepLimit int) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("history open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history migrate: %w", err)
	}
	if keepLimit <= 0 {
		keepLimit = 100
	}
	return &Store{db: db, keepLimit: keepLimit}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProbe inserts a finished probe and prunes history past the keep
// limit.
func (s *Store) SaveProbe(roomID, inputText string, res *realtime.Result) error {
	timeline, err := json.Marshal(res.EventTimeline)
	if err != nil {
		return fmt.Errorf("history timeline encode: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO probes (id, room_id, input_text, chat_text, latency_ms, total_audio_bytes, audio_chunk_count, audio_pcm, timeline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.SessionID, nullable(roomID), inputText, res.ChatText,
		res.LatencyMs, res.TotalAudioBytes, len(res.AudioChunksBase64),
		res.PCM, timeline, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM probes WHERE id NOT IN (SELECT id FROM probes ORDER BY created_at DESC LIMIT $1)`,
		s.keepLimit,
	)
	return err
}

// ListProbes returns probes ordered newest first, without timelines or
// audio.
func (s *Store) ListProbes(limit, offset int) ([]ProbeRecord, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM probes`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, room_id, input_text, chat_text, latency_ms, total_audio_bytes, audio_chunk_count, created_at
		FROM probes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var probes []ProbeRecord
	for rows.Next() {
		var p ProbeRecord
		var roomID sql.NullString
		if err = rows.Scan(&p.ID, &roomID, &p.InputText, &p.ChatText, &p.LatencyMs, &p.TotalAudioBytes, &p.AudioChunkCount, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		p.RoomID = roomID.String
		probes = append(probes, p)
	}
	return probes, total, rows.Err()
}

// GetProbe returns a single probe including its event timeline.
func (s *Store) GetProbe(id string) (*ProbeRecord, error) {
	var p ProbeRecord
	var roomID sql.NullString
	var timeline []byte
	err := s.db.QueryRow(
		`SELECT id, room_id, input_text, chat_text, latency_ms, total_audio_bytes, audio_chunk_count, timeline, created_at
		 FROM probes WHERE id = $1`, id,
	).Scan(&p.ID, &roomID, &p.InputText, &p.ChatText, &p.LatencyMs, &p.TotalAudioBytes, &p.AudioChunkCount, &timeline, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, realtime.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.RoomID = roomID.String
	if err = json.Unmarshal(timeline, &p.Timeline); err != nil {
		return nil, fmt.Errorf("history timeline decode: %w", err)
	}
	return &p, nil
}

// GetProbeAudio returns the stored raw PCM for one probe.
func (s *Store) GetProbeAudio(id string) ([]byte, error) {
	var pcm []byte
	err := s.db.QueryRow(`SELECT audio_pcm FROM probes WHERE id = $1`, id).Scan(&pcm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, realtime.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, realtime.ErrNotFound
	}
	return pcm, nil
}

// IsMember reports whether the user belongs to the room.
func (s *Store) IsMember(roomID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM room_members WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
