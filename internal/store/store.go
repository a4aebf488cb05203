package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

// Store handles SQLite persistence for alert events and enrolled faces
type Store struct {
	db *sql.DB
}

// AlertRecord is an alert event as stored in the database
type AlertRecord struct {
	ID           string
	CameraID     string
	CameraName   string
	IdentityID   string
	IdentityName string
	Similarity   float64
	Age          *int
	Gender       string
	Timestamp    time.Time
	FrameSeq     uint64
	FramePath    string
}

// FaceRecord is an enrolled identity with one reference embedding per row
type FaceRecord struct {
	ID        string
	Name      string
	Embedding []float32
	CreatedAt time.Time
}

// AlertQuery filters ListAlerts. Zero values mean unfiltered.
type AlertQuery struct {
	CameraID   string
	IdentityID string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// New opens the database and enables WAL mode
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS known_faces (
			rowid_key INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			camera_name TEXT,
			identity_id TEXT,
			identity_name TEXT NOT NULL,
			similarity REAL,
			age INTEGER,
			gender TEXT,
			timestamp DATETIME NOT NULL,
			frame_seq INTEGER,
			frame_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_id ON known_faces(id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_camera_time ON alert_events(camera_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_identity_time ON alert_events(identity_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_time ON alert_events(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveAlert inserts an alert event
func (s *Store) SaveAlert(rec *AlertRecord) error {
	query := `INSERT INTO alert_events
		(id, camera_id, camera_name, identity_id, identity_name, similarity, age, gender, timestamp, frame_seq, frame_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var age interface{}
	if rec.Age != nil {
		age = *rec.Age
	}
	var identityID interface{}
	if rec.IdentityID != "" {
		identityID = rec.IdentityID
	}

	_, err := s.db.Exec(query, rec.ID, rec.CameraID, rec.CameraName, identityID, rec.IdentityName,
		rec.Similarity, age, rec.Gender, rec.Timestamp, rec.FrameSeq, rec.FramePath)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns alert events matching the query, newest first
func (s *Store) ListAlerts(q AlertQuery) ([]*AlertRecord, error) {
	query := `SELECT id, camera_id, camera_name, identity_id, identity_name, similarity, age, gender, timestamp, frame_seq, frame_path
		FROM alert_events WHERE 1=1`
	var args []interface{}

	if q.CameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, q.CameraID)
	}
	if q.IdentityID != "" {
		query += " AND identity_id = ?"
		args = append(args, q.IdentityID)
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, q.Until)
	}
	query += " ORDER BY timestamp DESC"
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*AlertRecord
	for rows.Next() {
		var rec AlertRecord
		var identityID sql.NullString
		var age sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.CameraID, &rec.CameraName, &identityID, &rec.IdentityName,
			&rec.Similarity, &age, &rec.Gender, &rec.Timestamp, &rec.FrameSeq, &rec.FramePath); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if identityID.Valid {
			rec.IdentityID = identityID.String
		}
		if age.Valid {
			v := int(age.Int64)
			rec.Age = &v
		}
		alerts = append(alerts, &rec)
	}
	return alerts, rows.Err()
}

// SaveFace adds one reference embedding for an identity
func (s *Store) SaveFace(rec *FaceRecord) error {
	query := `INSERT INTO known_faces (id, name, embedding, created_at) VALUES (?, ?, ?, ?)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(query, rec.ID, rec.Name, encodeEmbedding(rec.Embedding), createdAt)
	if err != nil {
		return fmt.Errorf("failed to save face: %w", err)
	}
	return nil
}

// DeleteFaces removes every embedding of an identity
func (s *Store) DeleteFaces(id string) error {
	_, err := s.db.Exec("DELETE FROM known_faces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete faces: %w", err)
	}
	return nil
}

// LoadIdentities groups all stored embeddings by identity, ordered by id
func (s *Store) LoadIdentities() ([]pipeline.KnownIdentity, error) {
	rows, err := s.db.Query("SELECT id, name, embedding FROM known_faces ORDER BY id, rowid_key")
	if err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}
	defer rows.Close()

	var identities []pipeline.KnownIdentity
	index := make(map[string]int)
	for rows.Next() {
		var id, name string
		var blob []byte
		if err := rows.Scan(&id, &name, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan face: %w", err)
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("identity %s: %w", id, err)
		}
		i, ok := index[id]
		if !ok {
			i = len(identities)
			index[id] = i
			identities = append(identities, pipeline.KnownIdentity{ID: id, Name: name})
		}
		identities[i].Embeddings = append(identities[i].Embeddings, emb)
	}
	return identities, rows.Err()
}

// PruneAlerts deletes alert events older than the cutoff and returns the
// number of rows removed
func (s *Store) PruneAlerts(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM alert_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune alerts: %w", err)
	}
	return res.RowsAffected()
}

// encodeEmbedding packs a vector as little-endian float32
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
