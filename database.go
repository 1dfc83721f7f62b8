package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// RacerRow represents an account record
type RacerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents a racer's career stats
type StatsRow struct {
	RacerID        int64
	Races          int
	Wins           int
	Podiums        int
	TotalScore     int
	CorrectAnswers int
	WrongAnswers   int
	Distance       float64
	BestTime       float64 // seconds; 0 = no finished race yet
}

// RaceResult is one racer's outcome, recorded at race end
type RaceResult struct {
	RacerID  int64 // 0 = guest, recorded by name only
	Name     string
	Position int
	Score    int
	Distance float64
	Correct  int
	Wrong    int
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS racers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		racer_id INTEGER PRIMARY KEY REFERENCES racers(id),
		races INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		podiums INTEGER NOT NULL DEFAULT 0,
		total_score INTEGER NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		wrong_answers INTEGER NOT NULL DEFAULT 0,
		distance REAL NOT NULL DEFAULT 0,
		best_time REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS races (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		difficulty TEXT NOT NULL DEFAULT 'easy',
		duration REAL NOT NULL DEFAULT 0,
		winner TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS race_players (
		race_id INTEGER NOT NULL REFERENCES races(id),
		racer_id INTEGER,
		name TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		distance REAL NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		wrong INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS achievements (
		racer_id INTEGER NOT NULL REFERENCES racers(id),
		achievement_id TEXT NOT NULL,
		unlocked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (racer_id, achievement_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		racer_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_race_players_racer ON race_players(racer_id);
	CREATE INDEX IF NOT EXISTS idx_racers_username ON racers(username);
	CREATE INDEX IF NOT EXISTS idx_analytics_type ON analytics_events(event_type);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreateRacer creates an account and its stats row, returns the racer ID
func (db *DB) CreateRacer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO racers (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (racer_id) VALUES (?)", id)
	return id, err
}

// GetRacerByUsername returns a racer by username, nil when absent
func (db *DB) GetRacerByUsername(username string) (*RacerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM racers WHERE username = ?",
		username,
	)
	r := &RacerRow{}
	err := row.Scan(&r.ID, &r.Username, &r.PassHash, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// GetRacerByID returns a racer by ID, nil when absent
func (db *DB) GetRacerByID(id int64) (*RacerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM racers WHERE id = ?",
		id,
	)
	r := &RacerRow{}
	err := row.Scan(&r.ID, &r.Username, &r.PassHash, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM racers WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetStats returns a racer's career stats, nil when absent
func (db *DB) GetStats(racerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(`
		SELECT racer_id, races, wins, podiums, total_score, correct_answers,
		       wrong_answers, distance, best_time
		FROM stats WHERE racer_id = ?`, racerID)
	s := &StatsRow{}
	err := row.Scan(&s.RacerID, &s.Races, &s.Wins, &s.Podiums, &s.TotalScore,
		&s.CorrectAnswers, &s.WrongAnswers, &s.Distance, &s.BestTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// RecordRace records a finished race and returns its ID
func (db *DB) RecordRace(difficulty string, duration float64, winner string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO races (difficulty, duration, winner) VALUES (?, ?, ?)",
		difficulty, duration, winner,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordRacePlayer records one racer's result for a race
func (db *DB) RecordRacePlayer(raceID int64, r RaceResult) error {
	racerID := sql.NullInt64{Int64: r.RacerID, Valid: r.RacerID != 0}
	_, err := db.conn.Exec(
		`INSERT INTO race_players (race_id, racer_id, name, position, score, distance, correct, wrong)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		raceID, racerID, r.Name, r.Position, r.Score, r.Distance, r.Correct, r.Wrong,
	)
	return err
}

// UpdateStatsAfterRace folds one race result into a racer's career stats
func (db *DB) UpdateStatsAfterRace(racerID int64, r RaceResult, won bool, duration float64) error {
	winInc := 0
	if won {
		winInc = 1
	}
	podiumInc := 0
	if r.Position <= 3 {
		podiumInc = 1
	}

	_, err := db.conn.Exec(`
		UPDATE stats SET
			races = races + 1,
			wins = wins + ?,
			podiums = podiums + ?,
			total_score = total_score + ?,
			correct_answers = correct_answers + ?,
			wrong_answers = wrong_answers + ?,
			distance = distance + ?
		WHERE racer_id = ?`,
		winInc, podiumInc, r.Score, r.Correct, r.Wrong, r.Distance, racerID,
	)
	if err != nil {
		return err
	}

	if won {
		_, err = db.conn.Exec(`
			UPDATE stats SET best_time = ?
			WHERE racer_id = ? AND (best_time = 0 OR best_time > ?)`,
			duration, racerID, duration,
		)
	}
	return err
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	Username   string `json:"username"`
	Races      int    `json:"races"`
	Wins       int    `json:"wins"`
	TotalScore int    `json:"totalScore"`
	Correct    int    `json:"correct"`
}

// GetLeaderboard returns top racers sorted by the given field
func (db *DB) GetLeaderboard(orderBy string, limit int) ([]LeaderboardEntry, error) {
	validCols := map[string]string{
		"wins":  "s.wins",
		"score": "s.total_score",
		"races": "s.races",
		"accuracy": `CASE WHEN s.correct_answers + s.wrong_answers > 0
			THEN CAST(s.correct_answers AS REAL)/(s.correct_answers + s.wrong_answers)
			ELSE 0 END`,
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = "s.total_score"
	}

	query := `SELECT r.username, s.races, s.wins, s.total_score, s.correct_answers
		FROM stats s JOIN racers r ON r.id = s.racer_id
		ORDER BY ` + col + ` DESC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Races, &e.Wins, &e.TotalScore, &e.Correct); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// UnlockAchievement records an achievement. Returns true if newly unlocked.
func (db *DB) UnlockAchievement(racerID int64, achievementID string) (bool, error) {
	res, err := db.conn.Exec(
		"INSERT OR IGNORE INTO achievements (racer_id, achievement_id) VALUES (?, ?)",
		racerID, achievementID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetAchievements returns the IDs a racer has unlocked
func (db *DB) GetAchievements(racerID int64) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT achievement_id FROM achievements WHERE racer_id = ?", racerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSetting returns a settings value, empty string when absent
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting stores a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
