package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/llm"
	"github.com/insightloop/insightloop/internal/store"
)

// fakeGen serves queued structured responses in call order.
type fakeGen struct {
	responses []string
	calls     int
	textOut   string
}

func (f *fakeGen) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	return f.textOut, nil
}

func (f *fakeGen) CompleteJSON(_ context.Context, _ llm.JSONRequest) (string, error) {
	if f.calls >= len(f.responses) {
		return "", fmt.Errorf("no queued response")
	}
	out := f.responses[f.calls]
	f.calls++
	return out, nil
}

func newTestSessionsHandler(t *testing.T, gen llm.Generator) (*SessionsHandler, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	st := &store.Store{DB: conn}
	logger := log.New(io.Discard, "", 0)
	policy := interview.NewTurnPolicy(gen, 0.7, 400, 10, "thank you for your time")
	extractor := interview.NewExtractor(gen, 0.2, 900, logger)
	mgr := interview.NewManager(st, policy, extractor, nil, nil, logger, 4, time.Minute)
	return &SessionsHandler{Store: st, Manager: mgr}, mock
}

func projectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "title", "product_idea", "persona_name", "persona_company",
		"guide_questions", "share_token", "created_at",
	}).AddRow(
		"proj-1", "user-1", "Invoice Helper", "automated invoicing for freelancers",
		"Alex", "Invoice Helper", []byte(`["How do you invoice clients today?"]`), "tok-1", time.Now(),
	)
}

func sessionRows(status string) *sqlmock.Rows {
	var concluded interface{}
	if status == "concluded" {
		concluded = time.Now()
	}
	return sqlmock.NewRows([]string{"id", "project_id", "user_id", "status", "started_at", "concluded_at"}).
		AddRow("sess-1", "proj-1", "user-1", status, time.Now(), concluded)
}

func TestStartSessionSeedsGuideQuestion(t *testing.T) {
	e := echo.New()
	handler, mock := newTestSessionsHandler(t, &fakeGen{})

	mock.ExpectQuery(`FROM projects WHERE share_token=\$1`).
		WithArgs("tok-1").
		WillReturnRows(projectRows())
	mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs("proj-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "started_at"}).AddRow("sess-1", time.Now()))
	mock.ExpectQuery(`INSERT INTO turns`).
		WithArgs("sess-1", "agent", "How do you invoice clients today?").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(1, time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/interviews/tok-1/sessions", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("token")
	ctx.SetParamValues("tok-1")

	if err := handler.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	var resp StartSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Status != interview.SessionInProgress {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Turn.Text != "How do you invoice clients today?" {
		t.Fatalf("unexpected seed turn: %+v", resp.Turn)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStartSessionUnknownToken(t *testing.T) {
	e := echo.New()
	handler, mock := newTestSessionsHandler(t, &fakeGen{})

	mock.ExpectQuery(`FROM projects WHERE share_token=\$1`).
		WithArgs("nope").
		WillReturnError(fmt.Errorf("sql: no rows in result set"))

	req := httptest.NewRequest(http.MethodPost, "/api/interviews/nope/sessions", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("token")
	ctx.SetParamValues("nope")

	err := handler.start(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %#v", err)
	}
}

func TestSubmitReplyAdvancesConversation(t *testing.T) {
	e := echo.New()
	gen := &fakeGen{responses: []string{`{"reply": "How often does that happen?", "concluding": false}`}}
	handler, mock := newTestSessionsHandler(t, gen)

	mock.ExpectQuery(`FROM projects WHERE share_token=\$1`).
		WithArgs("tok-1").
		WillReturnRows(projectRows())
	mock.ExpectQuery(`FROM sessions WHERE id=\$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("in_progress"))
	mock.ExpectQuery(`INSERT INTO turns`).
		WithArgs("sess-1", "respondent", "spreadsheets, painfully").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(2, time.Now()))
	mock.ExpectQuery(`SELECT seq, role, body, created_at FROM turns`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "role", "body", "created_at"}).
			AddRow(1, "agent", "How do you invoice clients today?", time.Now()).
			AddRow(2, "respondent", "spreadsheets, painfully", time.Now()))
	mock.ExpectQuery(`INSERT INTO turns`).
		WithArgs("sess-1", "agent", "How often does that happen?").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(3, time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/interviews/tok-1/sessions/sess-1/replies",
		strings.NewReader(`{"text":"spreadsheets, painfully"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("token", "id")
	ctx.SetParamValues("tok-1", "sess-1")

	if err := handler.reply(ctx); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp SubmitReplyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Turn.Text != "How often does that happen?" {
		t.Fatalf("unexpected agent turn: %+v", resp.Turn)
	}
	if resp.Status != interview.SessionInProgress || resp.Recovered {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSubmitReplyConcludedSessionConflicts(t *testing.T) {
	e := echo.New()
	handler, mock := newTestSessionsHandler(t, &fakeGen{})

	mock.ExpectQuery(`FROM projects WHERE share_token=\$1`).
		WithArgs("tok-1").
		WillReturnRows(projectRows())
	mock.ExpectQuery(`FROM sessions WHERE id=\$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("concluded"))

	req := httptest.NewRequest(http.MethodPost, "/api/interviews/tok-1/sessions/sess-1/replies",
		strings.NewReader(`{"text":"one more thing"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("token", "id")
	ctx.SetParamValues("tok-1", "sess-1")

	err := handler.reply(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 error, got %#v", err)
	}
}

func TestSubmitReplyRejectsEmptyText(t *testing.T) {
	e := echo.New()
	handler, mock := newTestSessionsHandler(t, &fakeGen{})

	mock.ExpectQuery(`FROM projects WHERE share_token=\$1`).
		WithArgs("tok-1").
		WillReturnRows(projectRows())
	mock.ExpectQuery(`FROM sessions WHERE id=\$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("in_progress"))

	req := httptest.NewRequest(http.MethodPost, "/api/interviews/tok-1/sessions/sess-1/replies",
		strings.NewReader(`{"text":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("token", "id")
	ctx.SetParamValues("tok-1", "sess-1")

	err := handler.reply(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %#v", err)
	}
}

func TestTranscriptScopedToOwner(t *testing.T) {
	e := echo.New()
	handler, mock := newTestSessionsHandler(t, &fakeGen{})

	mock.ExpectQuery(`FROM sessions WHERE id=\$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("concluded"))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "someone-else")
	ctx.SetParamNames("id")
	ctx.SetParamValues("sess-1")

	err := handler.transcript(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %#v", err)
	}
}

func TestTranscriptReturnsOrderedTurns(t *testing.T) {
	e := echo.New()
	handler, mock := newTestSessionsHandler(t, &fakeGen{})

	mock.ExpectQuery(`FROM sessions WHERE id=\$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("concluded"))
	mock.ExpectQuery(`SELECT seq, role, body, created_at FROM turns`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "role", "body", "created_at"}).
			AddRow(1, "agent", "q1", time.Now()).
			AddRow(2, "respondent", "a1", time.Now()).
			AddRow(3, "agent", "q2", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("sess-1")

	if err := handler.transcript(ctx); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	var resp TranscriptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(resp.Turns))
	}
	for i, turn := range resp.Turns {
		if turn.Sequence != i+1 {
			t.Fatalf("turns out of order: %+v", resp.Turns)
		}
	}
}
