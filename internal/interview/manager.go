package interview

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/insightloop/insightloop/internal/telemetry"
)

// Storage is the persistence surface the state machine requires: ordered
// append and read of turns, session lifecycle rows, and at-most-once insight
// inserts. Implemented by the postgres store.
type Storage interface {
	CreateSession(ctx context.Context, projectID, userID string) (Session, error)
	AppendTurn(ctx context.Context, sessionID string, role Role, text string) (Turn, error)
	ListTurns(ctx context.Context, sessionID string) ([]Turn, error)
	// ConcludeSession flips in_progress to concluded and reports whether
	// this caller won the transition.
	ConcludeSession(ctx context.Context, sessionID string) (bool, error)
	// InsertInsight persists a record keyed by session id; inserted is
	// false when a record for the session already existed.
	InsertInsight(ctx context.Context, rec InsightRecord) (InsightRecord, bool, error)
}

// Locker is a short-lived exclusive lock used to keep concurrent conclusion
// triggers (two tabs finishing the same interview) from racing the same
// extraction call. The status compare-and-swap stays the correctness
// guarantee; the lock only avoids duplicate generation spend.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// ReplyResult is what SubmitReply hands back to the transport layer.
type ReplyResult struct {
	AgentTurn Turn
	Concluded bool
	// Recovered marks the agent turn as the local fallback message after a
	// generation failure; it was not persisted.
	Recovered bool
}

// Manager owns the session lifecycle: it seeds interviews, advances them one
// respondent reply at a time, decides when they conclude, and triggers
// insight extraction exactly once on conclusion.
type Manager struct {
	storage   Storage
	policy    *TurnPolicy
	extractor *Extractor
	locker    Locker
	tele      *telemetry.Telemetry
	logger    *log.Logger

	maxRespondentTurns int
	lockTTL            time.Duration
}

func NewManager(storage Storage, policy *TurnPolicy, extractor *Extractor, locker Locker, tele *telemetry.Telemetry, logger *log.Logger, maxRespondentTurns int, lockTTL time.Duration) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[INTERVIEW] ", log.LstdFlags)
	}
	if maxRespondentTurns <= 0 {
		maxRespondentTurns = 4
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Manager{
		storage:            storage,
		policy:             policy,
		extractor:          extractor,
		locker:             locker,
		tele:               tele,
		logger:             logger,
		maxRespondentTurns: maxRespondentTurns,
		lockTTL:            lockTTL,
	}
}

// Start creates a session for the project and seeds the first agent turn:
// the first guide question when the project carries a precomputed guide,
// otherwise a generated opening line.
func (m *Manager) Start(ctx context.Context, project Project) (Session, Turn, error) {
	var opening string
	if len(project.GuideQuestions) > 0 {
		opening = project.GuideQuestions[0]
	} else {
		var err error
		opening, err = m.policy.OpeningQuestion(ctx, project)
		if err != nil {
			return Session{}, Turn{}, err
		}
	}

	sess, err := m.storage.CreateSession(ctx, project.ID, project.UserID)
	if err != nil {
		return Session{}, Turn{}, fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	turn, err := m.storage.AppendTurn(ctx, sess.ID, RoleAgent, opening)
	if err != nil {
		return Session{}, Turn{}, fmt.Errorf("%w: seed turn: %v", ErrInitialization, err)
	}
	if m.tele != nil {
		m.tele.SessionsStarted.Inc()
	}
	m.logger.Printf("session %s started for project %s", sess.ID, project.ID)
	return sess, turn, nil
}

// SubmitReply appends the respondent's reply, generates the next agent turn
// and evaluates the termination predicate. On conclusion it runs insight
// extraction for the transition winner before returning.
//
// On a generation failure the respondent turn stays persisted, the session
// stays in progress, and the returned turn is a non-persisted apology so the
// respondent may retry; the error still reports ErrTurnGeneration.
func (m *Manager) SubmitReply(ctx context.Context, project Project, sess Session, text string) (ReplyResult, error) {
	if sess.Status != SessionInProgress {
		return ReplyResult{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.ID, sess.Status)
	}
	if strings.TrimSpace(text) == "" {
		return ReplyResult{}, fmt.Errorf("reply text is empty")
	}

	if _, err := m.storage.AppendTurn(ctx, sess.ID, RoleRespondent, text); err != nil {
		return ReplyResult{}, fmt.Errorf("append respondent turn: %w", err)
	}
	turns, err := m.storage.ListTurns(ctx, sess.ID)
	if err != nil {
		return ReplyResult{}, fmt.Errorf("list turns: %w", err)
	}

	reply, err := m.policy.NextReply(ctx, project, turns)
	if err != nil {
		if m.tele != nil {
			m.tele.TurnFailures.Inc()
		}
		m.logger.Printf("session %s: turn generation failed: %v", sess.ID, err)
		return ReplyResult{
			AgentTurn: Turn{Role: RoleAgent, Text: apologyText},
			Recovered: true,
		}, err
	}
	agentTurn, err := m.storage.AppendTurn(ctx, sess.ID, RoleAgent, reply.Reply)
	if err != nil {
		return ReplyResult{}, fmt.Errorf("append agent turn: %w", err)
	}
	if m.tele != nil {
		m.tele.TurnsGenerated.Inc()
	}

	respondentTurns := 0
	for _, t := range turns {
		if t.Role == RoleRespondent {
			respondentTurns++
		}
	}
	if respondentTurns < m.maxRespondentTurns && !m.policy.IsClosing(reply) {
		return ReplyResult{AgentTurn: agentTurn}, nil
	}

	if err := m.conclude(ctx, project, sess.ID, append(turns, agentTurn)); err != nil {
		return ReplyResult{AgentTurn: agentTurn, Concluded: true}, err
	}
	return ReplyResult{AgentTurn: agentTurn, Concluded: true}, nil
}

// conclude flips the session to concluded and, if this caller won the
// transition, extracts and persists the insight record. Losing the
// compare-and-swap (or the lock) means another trigger is handling it.
func (m *Manager) conclude(ctx context.Context, project Project, sessionID string, transcript []Turn) error {
	if m.locker != nil {
		key := "interview:conclude:" + sessionID
		ok, err := m.locker.Acquire(ctx, key, m.lockTTL)
		if err != nil {
			// CAS below still guarantees a single transition
			m.logger.Printf("session %s: conclusion lock unavailable: %v", sessionID, err)
		} else if !ok {
			return nil
		} else {
			defer m.locker.Release(ctx, key)
		}
	}

	won, err := m.storage.ConcludeSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("conclude session: %w", err)
	}
	if !won {
		return nil
	}
	if m.tele != nil {
		m.tele.SessionsConcluded.Inc()
	}
	m.logger.Printf("session %s concluded after %d turns", sessionID, len(transcript))

	insight, err := m.extractor.Extract(ctx, project, transcript)
	if err != nil {
		if m.tele != nil {
			m.tele.ExtractionFailures.Inc()
		}
		return err
	}
	return m.persistInsight(ctx, project, sessionID, insight)
}

// RetryExtraction re-runs extraction for a concluded session. It is the
// manual recovery path after an ErrExtraction; the session-keyed insert
// keeps it harmless when a record already exists.
func (m *Manager) RetryExtraction(ctx context.Context, project Project, sess Session) (InsightRecord, error) {
	if sess.Status != SessionConcluded {
		return InsightRecord{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.ID, sess.Status)
	}
	turns, err := m.storage.ListTurns(ctx, sess.ID)
	if err != nil {
		return InsightRecord{}, fmt.Errorf("list turns: %w", err)
	}
	insight, err := m.extractor.Extract(ctx, project, turns)
	if err != nil {
		if m.tele != nil {
			m.tele.ExtractionFailures.Inc()
		}
		return InsightRecord{}, err
	}
	rec, _, err := m.storage.InsertInsight(ctx, InsightRecord{
		SessionID: sess.ID,
		ProjectID: project.ID,
		UserID:    project.UserID,
		Insight:   insight,
	})
	if err != nil {
		return InsightRecord{}, fmt.Errorf("insert insight: %w", err)
	}
	if m.tele != nil {
		m.tele.InsightsExtracted.Inc()
	}
	return rec, nil
}

func (m *Manager) persistInsight(ctx context.Context, project Project, sessionID string, insight Insight) error {
	_, inserted, err := m.storage.InsertInsight(ctx, InsightRecord{
		SessionID: sessionID,
		ProjectID: project.ID,
		UserID:    project.UserID,
		Insight:   insight,
	})
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	if inserted && m.tele != nil {
		m.tele.InsightsExtracted.Inc()
	}
	return nil
}
