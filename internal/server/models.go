package server

import "github.com/insightloop/insightloop/internal/interview"

// HTTPError is the generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse identifies the authenticated user.
type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// PersonaPayload is the agent identity attached to a project.
type PersonaPayload struct {
	Name    string `json:"name"`
	Company string `json:"company"`
}

// CreateProjectRequest represents a new project payload. GuideQuestions is
// an optional precomputed interview guide; its first question seeds new
// sessions.
type CreateProjectRequest struct {
	Title          string         `json:"title"`
	ProductIdea    string         `json:"product_idea"`
	Persona        PersonaPayload `json:"persona"`
	GuideQuestions []string       `json:"guide_questions"`
}

// StartSessionResponse is returned when a respondent begins an interview.
type StartSessionResponse struct {
	SessionID string                  `json:"session_id"`
	Status    interview.SessionStatus `json:"status"`
	Turn      interview.Turn          `json:"turn"`
}

// SubmitReplyRequest carries one respondent reply.
type SubmitReplyRequest struct {
	Text string `json:"text"`
}

// SubmitReplyResponse returns the next agent turn. Recovered marks a
// non-persisted fallback message after a generation failure; the respondent
// may resubmit.
type SubmitReplyResponse struct {
	Turn      interview.Turn          `json:"turn"`
	Status    interview.SessionStatus `json:"status"`
	Recovered bool                    `json:"recovered,omitempty"`
}

// TranscriptResponse is the founder-facing session view.
type TranscriptResponse struct {
	Session interview.Session `json:"session"`
	Turns   []interview.Turn  `json:"turns"`
}
