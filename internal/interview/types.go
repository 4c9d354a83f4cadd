package interview

import "time"

// Role identifies who spoke a turn.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleRespondent Role = "respondent"
)

// SessionStatus is the lifecycle state of one interview run. Transitions are
// one-directional: not_started -> in_progress -> concluded.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionConcluded  SessionStatus = "concluded"
)

// Turn is one utterance within a session. Immutable once appended; Sequence
// is the monotonic order key and the sole ordering invariant.
type Turn struct {
	Sequence  int       `json:"sequence"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one complete interview conversation instance tied to a project.
type Session struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	UserID      string        `json:"user_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	ConcludedAt *time.Time    `json:"concluded_at,omitempty"`
}

// Persona is the agent's presented identity used to frame generated dialogue.
type Persona struct {
	Name    string `json:"name"`
	Company string `json:"company"`
}

// Project describes the product idea under validation and how the agent
// should present itself. GuideQuestions, when present, is a precomputed
// interview guide; the first question seeds new sessions.
type Project struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	ProductIdea    string    `json:"product_idea"`
	Persona        Persona   `json:"persona"`
	GuideQuestions []string  `json:"guide_questions,omitempty"`
	ShareToken     string    `json:"share_token"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary is the executive rollup of one interview.
type Summary struct {
	WhatWeLearned   string `json:"whatWeLearned"`
	WhatToBuildNext string `json:"whatToBuildNext"`
}

type PainPoint struct {
	Point    string `json:"point"`
	Severity string `json:"severity"`
}

type Quote struct {
	Quote     string `json:"quote"`
	Speaker   string `json:"speaker"`
	Sentiment string `json:"sentiment"`
}

type Objection struct {
	Objection string `json:"objection"`
	Type      string `json:"type"`
}

type FeatureIdea struct {
	Idea   string `json:"idea"`
	Source string `json:"source"`
}

// Insight is the structured extraction result for one concluded session.
// The five top-level JSON fields are the load-bearing contract: the
// extractor validates their presence and the dashboard consumes them as-is.
type Insight struct {
	Summary      Summary       `json:"summary"`
	PainPoints   []PainPoint   `json:"painPoints"`
	Quotes       []Quote       `json:"quotes"`
	Objections   []Objection   `json:"objections"`
	FeatureIdeas []FeatureIdea `json:"featureIdeas"`
}

// InsightRecord is a persisted Insight with its provenance. At most one
// exists per session. ProjectTitle is denormalised for quote tagging.
type InsightRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	ProjectID    string    `json:"project_id"`
	UserID       string    `json:"user_id"`
	ProjectTitle string    `json:"project_title,omitempty"`
	Insight      Insight   `json:"insight"`
	CreatedAt    time.Time `json:"created_at"`
}
