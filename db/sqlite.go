package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"hummify/models"
	"hummify/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	err = createTables(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createHumsTable := `
    CREATE TABLE IF NOT EXISTS hums (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        username TEXT,
        title TEXT NOT NULL,
        file_size INTEGER NOT NULL DEFAULT 0,
        audio_format TEXT,
        processing_status TEXT NOT NULL,
        is_public INTEGER NOT NULL DEFAULT 1,
        likes INTEGER NOT NULL DEFAULT 0,
        comments_count INTEGER NOT NULL DEFAULT 0,
        matched_song TEXT,
        match_confidence REAL NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_hums_created_at ON hums(created_at);
    CREATE INDEX IF NOT EXISTS idx_hums_user ON hums(user_id);
    `

	createUsersTable := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        name TEXT,
        email TEXT,
        total_hums INTEGER NOT NULL DEFAULT 0,
        songs_identified INTEGER NOT NULL DEFAULT 0
    );
    `

	_, err := db.Exec(createHumsTable)
	if err != nil {
		return fmt.Errorf("error creating hums table: %s", err)
	}

	_, err = db.Exec(createUsersTable)
	if err != nil {
		return fmt.Errorf("error creating users table: %s", err)
	}

	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

func (db *SQLiteClient) CreateHum(hum *models.Hum) (string, error) {
	if hum.ID == "" {
		hum.ID = utils.GenerateUniqueID()
	}
	if hum.CreatedAt.IsZero() {
		hum.CreatedAt = time.Now().UTC()
	}

	var matchedJSON []byte
	if hum.MatchedSong != nil {
		var err error
		matchedJSON, err = json.Marshal(hum.MatchedSong)
		if err != nil {
			return "", fmt.Errorf("error encoding matched song: %s", err)
		}
	}

	_, err := db.db.Exec(`
        INSERT INTO hums (id, user_id, username, title, file_size, audio_format,
            processing_status, is_public, likes, comments_count, matched_song,
            match_confidence, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hum.ID, hum.UserID, hum.Username, hum.Title, hum.FileSize, hum.AudioFormat,
		hum.ProcessingStatus, hum.IsPublic, hum.Likes, hum.CommentsCount,
		nullableString(matchedJSON), hum.MatchConfidence, hum.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("error inserting hum: %s", err)
	}

	return hum.ID, nil
}

func (db *SQLiteClient) ListPublicHums(limit int) ([]models.Hum, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.db.Query(`
        SELECT id, user_id, username, title, file_size, audio_format,
            processing_status, is_public, likes, comments_count, matched_song,
            match_confidence, created_at
        FROM hums WHERE is_public = 1
        ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying hums: %s", err)
	}
	defer rows.Close()

	var hums []models.Hum
	for rows.Next() {
		var hum models.Hum
		var matchedJSON sql.NullString
		err := rows.Scan(&hum.ID, &hum.UserID, &hum.Username, &hum.Title,
			&hum.FileSize, &hum.AudioFormat, &hum.ProcessingStatus, &hum.IsPublic,
			&hum.Likes, &hum.CommentsCount, &matchedJSON, &hum.MatchConfidence,
			&hum.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning hum row: %s", err)
		}
		if matchedJSON.Valid && matchedJSON.String != "" {
			var match models.MatchCandidate
			if err := json.Unmarshal([]byte(matchedJSON.String), &match); err == nil {
				hum.MatchedSong = &match
			}
		}
		hums = append(hums, hum)
	}

	return hums, rows.Err()
}

func (db *SQLiteClient) GetUserProfile(userID string) (*models.UserProfile, error) {
	row := db.db.QueryRow(`
        SELECT id, name, email, total_hums, songs_identified
        FROM users WHERE id = ?`, userID)

	var profile models.UserProfile
	var name, email sql.NullString
	err := row.Scan(&profile.ID, &name, &email, &profile.TotalHums, &profile.SongsIdentified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving user profile: %s", err)
	}
	profile.Name = name.String
	profile.Email = email.String

	return &profile, nil
}

func (db *SQLiteClient) CreateOrUpdateUser(profile models.UserProfile) error {
	_, err := db.db.Exec(`
        INSERT INTO users (id, name, email) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		profile.ID, profile.Name, profile.Email)
	if err != nil {
		return fmt.Errorf("error upserting user: %s", err)
	}
	return nil
}

// statColumns maps the public counter names onto columns; incrementing
// anything else is rejected.
var statColumns = map[string]string{
	StatTotalHums:       "total_hums",
	StatSongsIdentified: "songs_identified",
}

func (db *SQLiteClient) IncrementUserStat(userID, statName string) error {
	column, ok := statColumns[statName]
	if !ok {
		return fmt.Errorf("unknown user stat: %s", statName)
	}

	// Counter rows must exist before incrementing
	if _, err := db.db.Exec(`INSERT OR IGNORE INTO users (id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("error ensuring user row: %s", err)
	}

	query := fmt.Sprintf("UPDATE users SET %s = %s + 1 WHERE id = ?", column, column)
	if _, err := db.db.Exec(query, userID); err != nil {
		return fmt.Errorf("error incrementing %s: %s", statName, err)
	}
	return nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
