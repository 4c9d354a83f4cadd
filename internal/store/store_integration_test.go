package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/store"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  email TEXT UNIQUE NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS projects (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  product_idea TEXT NOT NULL,
  persona_name TEXT NOT NULL,
  persona_company TEXT NOT NULL,
  guide_questions JSONB NOT NULL DEFAULT '[]'::jsonb,
  share_token TEXT UNIQUE NOT NULL,
  created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'in_progress',
  started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  concluded_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS turns (
  session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  role TEXT NOT NULL,
  body TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS insights (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  session_id UUID UNIQUE NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  summary JSONB NOT NULL,
  pain_points JSONB NOT NULL DEFAULT '[]'::jsonb,
  quotes JSONB NOT NULL DEFAULT '[]'::jsonb,
  objections JSONB NOT NULL DEFAULT '[]'::jsonb,
  feature_ideas JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("insightloop"),
		tcPostgres.WithUsername("insightloop"),
		tcPostgres.WithPassword("insightloop"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://insightloop:insightloop@%s:%s/insightloop?sslmode=disable", host, port.Port())

	var st *store.Store
	deadline := time.Now().Add(30 * time.Second)
	for {
		st, err = store.NewWithDSN(ctx, dsn)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("store init: %v", err)
		}
		time.Sleep(time.Second)
	}
	defer st.DB.Close()

	if _, err := st.DB.ExecContext(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	if err := st.CreateUser(ctx, "founder@example.com", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	userID, _, err := st.GetUserByEmail(ctx, "founder@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	project, err := st.CreateProject(ctx, interview.Project{
		UserID:         userID,
		Title:          "Invoice Helper",
		ProductIdea:    "automated invoicing for freelancers",
		Persona:        interview.Persona{Name: "Alex", Company: "Invoice Helper"},
		GuideQuestions: []string{"How do you invoice clients today?"},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if project.ShareToken == "" {
		t.Fatalf("expected a share token")
	}

	fetched, err := st.GetProjectByShareToken(ctx, project.ShareToken)
	if err != nil {
		t.Fatalf("get project by token: %v", err)
	}
	if len(fetched.GuideQuestions) != 1 {
		t.Fatalf("guide questions lost in round trip: %+v", fetched)
	}

	sess, err := st.CreateSession(ctx, project.ID, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != interview.SessionInProgress {
		t.Fatalf("expected in_progress session, got %s", sess.Status)
	}

	for i, text := range []string{"q1", "a1", "q2"} {
		role := interview.RoleAgent
		if i%2 == 1 {
			role = interview.RoleRespondent
		}
		turn, err := st.AppendTurn(ctx, sess.ID, role, text)
		if err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
		if turn.Sequence != i+1 {
			t.Fatalf("expected sequence %d, got %d", i+1, turn.Sequence)
		}
	}
	turns, err := st.ListTurns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Sequence != i+1 {
			t.Fatalf("turns out of order: %+v", turns)
		}
	}

	won, err := st.ConcludeSession(ctx, sess.ID)
	if err != nil || !won {
		t.Fatalf("first conclude must win: won=%v err=%v", won, err)
	}
	won, err = st.ConcludeSession(ctx, sess.ID)
	if err != nil || won {
		t.Fatalf("second conclude must lose: won=%v err=%v", won, err)
	}

	rec := interview.InsightRecord{
		SessionID: sess.ID,
		ProjectID: project.ID,
		UserID:    userID,
		Insight: interview.Insight{
			Summary:      interview.Summary{WhatWeLearned: "pricing is the blocker", WhatToBuildNext: "usage-based plan"},
			PainPoints:   []interview.PainPoint{{Point: "too expensive", Severity: "high"}},
			Quotes:       []interview.Quote{},
			Objections:   []interview.Objection{},
			FeatureIdeas: []interview.FeatureIdea{},
		},
	}
	first, inserted, err := st.InsertInsight(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	second, inserted, err := st.InsertInsight(ctx, rec)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("session-keyed insert must be idempotent")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing record back, got %s vs %s", second.ID, first.ID)
	}

	records, err := st.ListInsightsByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list insights: %v", err)
	}
	if len(records) != 1 || records[0].ProjectTitle != "Invoice Helper" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
