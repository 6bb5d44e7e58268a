package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBatchSequence(t *testing.T) {
	s := newTestStore(t)

	b1, err := s.BeginBatch("batch-1")
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if b1.Seq != 1 {
		t.Errorf("first batch seq = %d, want 1", b1.Seq)
	}

	b2, err := s.BeginBatch("batch-2")
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if b2.Seq != 2 {
		t.Errorf("second batch seq = %d, want 2", b2.Seq)
	}

	if err := s.CompleteBatch("batch-2", 10, 20, 1); err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}

	latest, err := s.LatestBatchSeq()
	if err != nil {
		t.Fatalf("LatestBatchSeq: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest seq = %d, want 2", latest)
	}
}

func TestUpsertPostRefreshesCountersOnly(t *testing.T) {
	s := newTestStore(t)

	orig := &Post{
		ID:        "p1",
		AuthorID:  "alice",
		Title:     "first post",
		Content:   "hello world",
		Submolt:   "general",
		Upvotes:   1,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertPost(orig); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	// Re-ingest with changed identity fields and new counters. Only the
	// counters may move.
	update := &Post{
		ID:           "p1",
		AuthorID:     "mallory",
		Title:        "edited title",
		Content:      "edited content",
		Upvotes:      42,
		Downvotes:    3,
		CommentCount: 7,
		CreatedAt:    time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertPost(update); err != nil {
		t.Fatalf("UpsertPost (update): %v", err)
	}

	got, err := s.GetPost("p1")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.AuthorID != "alice" {
		t.Errorf("author changed on re-ingest: %q", got.AuthorID)
	}
	if got.Title != "first post" || got.Content != "hello world" {
		t.Errorf("content changed on re-ingest: %q / %q", got.Title, got.Content)
	}
	if got.Upvotes != 42 || got.Downvotes != 3 || got.CommentCount != 7 {
		t.Errorf("counters not refreshed: up=%d down=%d comments=%d",
			got.Upvotes, got.Downvotes, got.CommentCount)
	}
}

func TestRecordInteractionIncrementsWeight(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.RecordInteraction("a", "b", KindMention); err != nil {
			t.Fatalf("RecordInteraction: %v", err)
		}
	}
	if err := s.RecordInteraction("a", "b", KindReply); err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	// Self-edge is legal
	if err := s.RecordInteraction("a", "a", KindReply); err != nil {
		t.Fatalf("RecordInteraction self-edge: %v", err)
	}

	edges, err := s.AllInteractions()
	if err != nil {
		t.Fatalf("AllInteractions: %v", err)
	}
	if len(edges) != 3 {
		t.Fatalf("edge count = %d, want 3", len(edges))
	}

	weights := make(map[string]int)
	for _, e := range edges {
		weights[e.From+"/"+e.To+"/"+e.Kind] = e.Weight
	}
	if weights["a/b/mention"] != 3 {
		t.Errorf("mention weight = %d, want 3", weights["a/b/mention"])
	}
	if weights["a/b/reply"] != 1 {
		t.Errorf("reply weight = %d, want 1", weights["a/b/reply"])
	}
	if weights["a/a/reply"] != 1 {
		t.Errorf("self-edge weight = %d, want 1", weights["a/a/reply"])
	}
}

func TestMemeOccurrenceFirstUseOnly(t *testing.T) {
	s := newTestStore(t)

	occ := &MemeOccurrence{
		Phrase:   "the lobsters remember everything",
		AuthorID: "alice",
		ItemID:   "p1",
		SeenAt:   time.Now(),
	}
	inserted, err := s.RecordMemeOccurrence(occ)
	if err != nil {
		t.Fatalf("RecordMemeOccurrence: %v", err)
	}
	if !inserted {
		t.Error("first occurrence should insert")
	}

	inserted, err = s.RecordMemeOccurrence(occ)
	if err != nil {
		t.Fatalf("RecordMemeOccurrence (repeat): %v", err)
	}
	if inserted {
		t.Error("repeat use by the same author should not insert")
	}

	occs, err := s.OccurrencesForPhrase(occ.Phrase)
	if err != nil {
		t.Fatalf("OccurrencesForPhrase: %v", err)
	}
	if len(occs) != 1 {
		t.Errorf("occurrence count = %d, want 1", len(occs))
	}
}

func TestConflictTerminalRowsNeverUpdate(t *testing.T) {
	s := newTestStore(t)

	id, err := s.OpenConflict(&Conflict{
		ActorA: "alice", ActorB: "bob", Topic: "safety",
		Intensity: 1, ExchangeCount: 1, LastBatch: 1,
	})
	if err != nil {
		t.Fatalf("OpenConflict: %v", err)
	}

	open, err := s.OpenConflictFor("alice", "bob", "safety")
	if err != nil {
		t.Fatalf("OpenConflictFor: %v", err)
	}
	if open.ID != id || open.State != ConflictActive {
		t.Fatalf("open conflict = %+v", open)
	}

	open.State = ConflictResolved
	open.Winner = "alice"
	if err := s.UpdateConflict(open); err != nil {
		t.Fatalf("UpdateConflict (resolve): %v", err)
	}

	// Any further update must fail.
	open.State = ConflictActive
	if err := s.UpdateConflict(open); err == nil {
		t.Error("update of terminal conflict should fail")
	}

	// And the pair is free for a new dispute row.
	if _, err := s.OpenConflictFor("alice", "bob", "safety"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for terminal pair, got %v", err)
	}
	if _, err := s.OpenConflict(&Conflict{
		ActorA: "alice", ActorB: "bob", Topic: "safety", Intensity: 1,
	}); err != nil {
		t.Errorf("post-terminal recurrence should open a new row: %v", err)
	}
}

func TestReputationOneRowPerActorPerBatch(t *testing.T) {
	s := newTestStore(t)

	e := &ReputationEntry{ActorID: "alice", BatchSeq: 1, Score: 50, Tier: "active"}
	if err := s.RecordReputation(e); err != nil {
		t.Fatalf("RecordReputation: %v", err)
	}
	e.Score = 61.5
	e.Tier = "rising"
	if err := s.RecordReputation(e); err != nil {
		t.Fatalf("RecordReputation (replace): %v", err)
	}

	hist, err := s.ReputationHistory("alice")
	if err != nil {
		t.Fatalf("ReputationHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
	if hist[0].Score != 61.5 || hist[0].Tier != "rising" {
		t.Errorf("row not replaced: %+v", hist[0])
	}
}

func TestDeliberationTerminalIsImmutable(t *testing.T) {
	s := newTestStore(t)

	d := &Deliberation{Fingerprint: "fp1", BatchSeq: 1, Verdict: VerdictFailed}
	if err := s.SaveDeliberation(d); err != nil {
		t.Fatalf("SaveDeliberation: %v", err)
	}

	// A failed cycle may be replaced by a terminal outcome.
	d.Verdict = VerdictApproved
	if err := s.SaveDeliberation(d); err != nil {
		t.Fatalf("SaveDeliberation (approve): %v", err)
	}

	// A terminal outcome is never replaced.
	d.Verdict = VerdictRejected
	if err := s.SaveDeliberation(d); err != nil {
		t.Fatalf("SaveDeliberation (attempt overwrite): %v", err)
	}

	got, err := s.GetDeliberation("fp1")
	if err != nil {
		t.Fatalf("GetDeliberation: %v", err)
	}
	if got.Verdict != VerdictApproved {
		t.Errorf("terminal verdict overwritten: %q", got.Verdict)
	}
	if !got.Terminal() {
		t.Error("approved verdict should be terminal")
	}
}

func TestPublicationTransitions(t *testing.T) {
	s := newTestStore(t)

	p := &Publication{ID: "pub1", Fingerprint: "fp1", Title: "cycle report"}
	if err := s.EnqueuePublication(p); err != nil {
		t.Fatalf("EnqueuePublication: %v", err)
	}

	if err := s.TransitionPublication("pub1", StatusPendingReview, StatusInDeliberation, "council started"); err != nil {
		t.Fatalf("transition to in_deliberation: %v", err)
	}
	if err := s.TransitionPublication("pub1", StatusInDeliberation, StatusApproved, "council approved"); err != nil {
		t.Fatalf("transition to approved: %v", err)
	}

	// Transition from a stale status must fail atomically.
	if err := s.TransitionPublication("pub1", StatusPendingReview, StatusPublished, "bogus"); err == nil {
		t.Error("transition from wrong status should fail")
	}

	got, err := s.GetPublication("pub1")
	if err != nil {
		t.Fatalf("GetPublication: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}

	log, err := s.PublicationLog("pub1")
	if err != nil {
		t.Fatalf("PublicationLog: %v", err)
	}
	if len(log) != 3 {
		t.Fatalf("log rows = %d, want 3 (submit + 2 transitions)", len(log))
	}
	if log[2].ToStatus != StatusApproved {
		t.Errorf("last log row = %+v", log[2])
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Second run must be a no-op.
	if err := RunMigrations(s.DB()); err != nil {
		t.Fatalf("RunMigrations (second run): %v", err)
	}
	if !columnExists(s.DB(), "deliberations", "fallback") {
		t.Error("expected fallback column after migrations")
	}
	if tableExists(s.DB(), "no_such_table") {
		t.Error("tableExists false positive")
	}
}
