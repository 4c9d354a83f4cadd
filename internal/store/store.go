package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/insightloop/insightloop/internal/interview"
)

// Store wraps the relational backend. All access is user- or project-scoped
// through the query arguments; there is no ambient session state.
type Store struct {
	DB *sql.DB
}

// New constructs the Store from DATABASE_URL or the POSTGRES_* variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, e.g. a duplicate signup email.
func IsUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

func (s *Store) GetUserEmail(ctx context.Context, id string) (string, error) {
	var email string
	err := s.DB.QueryRowContext(ctx, `SELECT email FROM users WHERE id=$1`, id).Scan(&email)
	return email, err
}

// Project operations

func (s *Store) CreateProject(ctx context.Context, p interview.Project) (interview.Project, error) {
	guide, err := json.Marshal(p.GuideQuestions)
	if err != nil {
		return interview.Project{}, fmt.Errorf("marshal guide questions: %w", err)
	}
	p.ShareToken = uuid.NewString()
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO projects (user_id, title, product_idea, persona_name, persona_company, guide_questions, share_token)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		p.UserID, p.Title, p.ProductIdea, p.Persona.Name, p.Persona.Company, guide, p.ShareToken,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return interview.Project{}, err
	}
	return p, nil
}

const projectColumns = `id, user_id, title, product_idea, persona_name, persona_company, guide_questions, share_token, created_at`

func scanProject(row *sql.Row) (interview.Project, error) {
	var p interview.Project
	var guide []byte
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.ProductIdea, &p.Persona.Name, &p.Persona.Company, &guide, &p.ShareToken, &p.CreatedAt)
	if err != nil {
		return interview.Project{}, err
	}
	if len(guide) > 0 {
		if err := json.Unmarshal(guide, &p.GuideQuestions); err != nil {
			return interview.Project{}, fmt.Errorf("unmarshal guide questions: %w", err)
		}
	}
	return p, nil
}

func (s *Store) GetProjectByID(ctx context.Context, id, userID string) (interview.Project, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1 AND user_id=$2`, id, userID)
	return scanProject(row)
}

// GetProjectByShareToken resolves the project behind a respondent link.
func (s *Store) GetProjectByShareToken(ctx context.Context, token string) (interview.Project, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE share_token=$1`, token)
	return scanProject(row)
}

func (s *Store) ListProjects(ctx context.Context, userID string) ([]interview.Project, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []interview.Project
	for rows.Next() {
		var p interview.Project
		var guide []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.ProductIdea, &p.Persona.Name, &p.Persona.Company, &guide, &p.ShareToken, &p.CreatedAt); err != nil {
			return nil, err
		}
		if len(guide) > 0 {
			if err := json.Unmarshal(guide, &p.GuideQuestions); err != nil {
				return nil, fmt.Errorf("unmarshal guide questions: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Session operations

func (s *Store) CreateSession(ctx context.Context, projectID, userID string) (interview.Session, error) {
	sess := interview.Session{ProjectID: projectID, UserID: userID, Status: interview.SessionInProgress}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO sessions (project_id, user_id, status) VALUES ($1,$2,'in_progress') RETURNING id, started_at`,
		projectID, userID,
	).Scan(&sess.ID, &sess.StartedAt)
	if err != nil {
		return interview.Session{}, err
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (interview.Session, error) {
	var sess interview.Session
	var concluded sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
SELECT id, project_id, user_id, status, started_at, concluded_at FROM sessions WHERE id=$1`, id,
	).Scan(&sess.ID, &sess.ProjectID, &sess.UserID, &sess.Status, &sess.StartedAt, &concluded)
	if err != nil {
		return interview.Session{}, err
	}
	if concluded.Valid {
		t := concluded.Time
		sess.ConcludedAt = &t
	}
	return sess, nil
}

// GetSessionForUser is the owner-scoped read used by authenticated views.
func (s *Store) GetSessionForUser(ctx context.Context, id, userID string) (interview.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return interview.Session{}, err
	}
	if sess.UserID != userID {
		return interview.Session{}, sql.ErrNoRows
	}
	return sess, nil
}

// ConcludeSession performs the one-directional status transition as a
// compare-and-swap; only one caller ever observes won=true.
func (s *Store) ConcludeSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE sessions SET status='concluded', concluded_at=NOW() WHERE id=$1 AND status='in_progress'`, sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Turn operations

// AppendTurn appends a turn with the next sequence number for the session.
// The sequence subquery plus the (session_id, seq) unique constraint keep
// the log strictly ordered.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, role interview.Role, text string) (interview.Turn, error) {
	t := interview.Turn{Role: role, Text: text}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO turns (session_id, seq, role, body)
SELECT $1, COALESCE(MAX(seq),0)+1, $2, $3 FROM turns WHERE session_id=$1
RETURNING seq, created_at`,
		sessionID, string(role), text,
	).Scan(&t.Sequence, &t.CreatedAt)
	if err != nil {
		return interview.Turn{}, err
	}
	return t, nil
}

// ListTurns returns the session's turns in append order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]interview.Turn, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT seq, role, body, created_at FROM turns WHERE session_id=$1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []interview.Turn
	for rows.Next() {
		var t interview.Turn
		if err := rows.Scan(&t.Sequence, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Insight operations

// InsertInsight persists the record keyed by session id. The conflict
// target makes creation idempotent: when a record already exists the
// existing row is returned with inserted=false.
func (s *Store) InsertInsight(ctx context.Context, rec interview.InsightRecord) (interview.InsightRecord, bool, error) {
	summary, err := json.Marshal(rec.Insight.Summary)
	if err != nil {
		return interview.InsightRecord{}, false, fmt.Errorf("marshal summary: %w", err)
	}
	pains, err := json.Marshal(rec.Insight.PainPoints)
	if err != nil {
		return interview.InsightRecord{}, false, fmt.Errorf("marshal pain points: %w", err)
	}
	quotes, err := json.Marshal(rec.Insight.Quotes)
	if err != nil {
		return interview.InsightRecord{}, false, fmt.Errorf("marshal quotes: %w", err)
	}
	objections, err := json.Marshal(rec.Insight.Objections)
	if err != nil {
		return interview.InsightRecord{}, false, fmt.Errorf("marshal objections: %w", err)
	}
	ideas, err := json.Marshal(rec.Insight.FeatureIdeas)
	if err != nil {
		return interview.InsightRecord{}, false, fmt.Errorf("marshal feature ideas: %w", err)
	}

	err = s.DB.QueryRowContext(ctx, `
INSERT INTO insights (session_id, project_id, user_id, summary, pain_points, quotes, objections, feature_ideas)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (session_id) DO NOTHING
RETURNING id, created_at`,
		rec.SessionID, rec.ProjectID, rec.UserID, summary, pains, quotes, objections, ideas,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return interview.InsightRecord{}, false, err
	}
	existing, err := s.GetInsightBySession(ctx, rec.SessionID, rec.UserID)
	if err != nil {
		return interview.InsightRecord{}, false, err
	}
	return existing, false, nil
}

const insightColumns = `i.id, i.session_id, i.project_id, i.user_id, p.title,
i.summary, i.pain_points, i.quotes, i.objections, i.feature_ideas, i.created_at`

func scanInsight(scan func(dest ...interface{}) error) (interview.InsightRecord, error) {
	var rec interview.InsightRecord
	var summary, pains, quotes, objections, ideas []byte
	if err := scan(&rec.ID, &rec.SessionID, &rec.ProjectID, &rec.UserID, &rec.ProjectTitle,
		&summary, &pains, &quotes, &objections, &ideas, &rec.CreatedAt); err != nil {
		return interview.InsightRecord{}, err
	}
	if err := json.Unmarshal(summary, &rec.Insight.Summary); err != nil {
		return interview.InsightRecord{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	if err := json.Unmarshal(pains, &rec.Insight.PainPoints); err != nil {
		return interview.InsightRecord{}, fmt.Errorf("unmarshal pain points: %w", err)
	}
	if err := json.Unmarshal(quotes, &rec.Insight.Quotes); err != nil {
		return interview.InsightRecord{}, fmt.Errorf("unmarshal quotes: %w", err)
	}
	if err := json.Unmarshal(objections, &rec.Insight.Objections); err != nil {
		return interview.InsightRecord{}, fmt.Errorf("unmarshal objections: %w", err)
	}
	if err := json.Unmarshal(ideas, &rec.Insight.FeatureIdeas); err != nil {
		return interview.InsightRecord{}, fmt.Errorf("unmarshal feature ideas: %w", err)
	}
	return rec, nil
}

func (s *Store) GetInsightBySession(ctx context.Context, sessionID, userID string) (interview.InsightRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT `+insightColumns+`
FROM insights i JOIN projects p ON p.id = i.project_id
WHERE i.session_id=$1 AND i.user_id=$2`, sessionID, userID)
	return scanInsight(row.Scan)
}

// ListInsightsByUser returns the user's insight records newest first, the
// order the aggregate view depends on.
func (s *Store) ListInsightsByUser(ctx context.Context, userID string) ([]interview.InsightRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+insightColumns+`
FROM insights i JOIN projects p ON p.id = i.project_id
WHERE i.user_id=$1 ORDER BY i.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []interview.InsightRecord
	for rows.Next() {
		rec, err := scanInsight(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
