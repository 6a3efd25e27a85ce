package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	// 确保目录存在
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库结构失败: %w", err)
	}

	return s, nil
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		scenario_id TEXT NOT NULL,
		state TEXT NOT NULL, -- JSON object
		history TEXT, -- JSON array
		dilemma TEXT, -- JSON object
		narrative TEXT, -- JSON array
		status TEXT DEFAULT 'active',
		ending_id TEXT,
		state_hash TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS save_games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		turn INTEGER,
		day INTEGER,
		snapshot TEXT NOT NULL, -- JSON object
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_session_scenario ON sessions(scenario_id);
	CREATE INDEX IF NOT EXISTS idx_session_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_save_session ON save_games(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// sessionColumns 会话中以 JSON 存储的列
type sessionColumns struct {
	state, history, dilemma, narrative []byte
}

func encodeSession(session *models.Session) (*sessionColumns, error) {
	var cols sessionColumns
	var err error
	if cols.state, err = json.Marshal(session.State); err != nil {
		return nil, fmt.Errorf("序列化状态失败: %w", err)
	}
	if cols.history, err = json.Marshal(session.History); err != nil {
		return nil, fmt.Errorf("序列化历史失败: %w", err)
	}
	if cols.dilemma, err = json.Marshal(session.Dilemma); err != nil {
		return nil, fmt.Errorf("序列化抉择失败: %w", err)
	}
	if cols.narrative, err = json.Marshal(session.Narrative); err != nil {
		return nil, fmt.Errorf("序列化叙事失败: %w", err)
	}
	return &cols, nil
}

// Session operations
func (s *Storage) CreateSession(session *models.Session) error {
	cols, err := encodeSession(session)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, scenario_id, state, history, dilemma, narrative, status, ending_id, state_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.ScenarioID, string(cols.state), string(cols.history), string(cols.dilemma),
		string(cols.narrative), session.Status, session.EndingID, session.StateHash, session.CreatedAt, session.UpdatedAt)

	return err
}

func (s *Storage) UpdateSession(session *models.Session) error {
	cols, err := encodeSession(session)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE sessions SET state = ?, history = ?, dilemma = ?, narrative = ?, status = ?, ending_id = ?, state_hash = ?, updated_at = ?
		WHERE id = ?
	`, string(cols.state), string(cols.history), string(cols.dilemma), string(cols.narrative),
		session.Status, session.EndingID, session.StateHash, session.UpdatedAt, session.ID)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, session.ID)
	}
	return nil
}

func (s *Storage) GetSession(id string) (*models.Session, error) {
	var session models.Session
	var stateJSON, historyJSON, dilemmaJSON, narrativeJSON string
	var endingID, stateHash sql.NullString

	err := s.db.QueryRow(`
		SELECT id, scenario_id, state, history, dilemma, narrative, status, ending_id, state_hash, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.ScenarioID, &stateJSON, &historyJSON, &dilemmaJSON, &narrativeJSON,
		&session.Status, &endingID, &stateHash, &session.CreatedAt, &session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(stateJSON), &session.State); err != nil {
		return nil, fmt.Errorf("解析状态失败: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &session.History); err != nil {
		return nil, fmt.Errorf("解析历史失败: %w", err)
	}
	if err := json.Unmarshal([]byte(dilemmaJSON), &session.Dilemma); err != nil {
		return nil, fmt.Errorf("解析抉择失败: %w", err)
	}
	if err := json.Unmarshal([]byte(narrativeJSON), &session.Narrative); err != nil {
		return nil, fmt.Errorf("解析叙事失败: %w", err)
	}
	session.EndingID = endingID.String
	session.StateHash = stateHash.String

	return &session, nil
}

// SaveGame operations
func (s *Storage) CreateSaveGame(save *models.SaveGame) error {
	snapshotJSON, err := json.Marshal(save.Snapshot)
	if err != nil {
		return fmt.Errorf("序列化存档失败: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO save_games (id, name, session_id, turn, day, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, save.ID, save.Name, save.SessionID, save.Turn, save.Day, string(snapshotJSON), save.CreatedAt)

	return err
}

func (s *Storage) GetSaveGame(id string) (*models.SaveGame, error) {
	var save models.SaveGame
	var snapshotJSON string

	err := s.db.QueryRow(`
		SELECT id, name, session_id, turn, day, snapshot, created_at
		FROM save_games WHERE id = ?
	`, id).Scan(&save.ID, &save.Name, &save.SessionID, &save.Turn, &save.Day, &snapshotJSON, &save.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSaveNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(snapshotJSON), &save.Snapshot); err != nil {
		return nil, fmt.Errorf("解析存档失败: %w", err)
	}
	return &save, nil
}

// ListSaveGames 列出会话存档（不含快照），新的在前
func (s *Storage) ListSaveGames(sessionID string) ([]models.SaveGame, error) {
	rows, err := s.db.Query(`
		SELECT id, name, session_id, turn, day, created_at
		FROM save_games WHERE session_id = ?
		ORDER BY created_at DESC
	`, sessionID)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	saves := []models.SaveGame{}
	for rows.Next() {
		var save models.SaveGame
		err := rows.Scan(&save.ID, &save.Name, &save.SessionID, &save.Turn, &save.Day, &save.CreatedAt)
		if err != nil {
			continue
		}
		saves = append(saves, save)
	}

	return saves, rows.Err()
}

func (s *Storage) DeleteSaveGame(id string) error {
	_, err := s.db.Exec("DELETE FROM save_games WHERE id = ?", id)
	return err
}
