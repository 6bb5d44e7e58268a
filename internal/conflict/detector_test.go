package conflict

import (
	"testing"
	"time"

	"observatory/internal/config"
	"observatory/internal/store"
)

func newTestDetector(t *testing.T) (*Detector, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, config.ConflictConfig{EscalationWindow: 2, MaxIntensity: 5}), st
}

func at(minute int) time.Time {
	return time.Date(2026, 8, 1, 12, minute, 0, 0, time.UTC)
}

func attack(attacker, defender string, minute int) Exchange {
	return Exchange{
		Attacker: attacker,
		Defender: defender,
		Topic:    "general",
		Marker:   "i disagree",
		At:       at(minute),
	}
}

func mustOne(t *testing.T, st *store.Store) *store.Conflict {
	t.Helper()
	all, err := st.AllConflicts()
	if err != nil {
		t.Fatalf("load conflicts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("conflict rows = %d, want 1", len(all))
	}
	return &all[0]
}

func TestFirstExchangeOpensActiveDispute(t *testing.T) {
	d, st := newTestDetector(t)

	sum, err := d.Process(1, []Exchange{attack("bob", "alice", 0)})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Opened != 1 {
		t.Errorf("opened = %d, want 1", sum.Opened)
	}

	c := mustOne(t, st)
	if c.State != store.ConflictActive {
		t.Errorf("state = %q, want active", c.State)
	}
	if c.ActorA != "alice" || c.ActorB != "bob" {
		t.Errorf("pair = (%s, %s), want normalized (alice, bob)", c.ActorA, c.ActorB)
	}
	if c.Intensity != 1 || c.ExchangeCount != 1 || c.HostileStreak != 1 {
		t.Errorf("counters = (%d, %d, %d), want (1, 1, 1)",
			c.Intensity, c.ExchangeCount, c.HostileStreak)
	}
	if c.LastRebutter != "bob" {
		t.Errorf("last rebutter = %q, want bob", c.LastRebutter)
	}
}

func TestSustainedHostilityEscalates(t *testing.T) {
	d, st := newTestDetector(t)

	if _, err := d.Process(1, []Exchange{attack("bob", "alice", 0)}); err != nil {
		t.Fatal(err)
	}
	sum, err := d.Process(2, []Exchange{attack("alice", "bob", 1)})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Escalated != 1 {
		t.Errorf("escalated = %d, want 1", sum.Escalated)
	}

	c := mustOne(t, st)
	if c.State != store.ConflictEscalated {
		t.Errorf("state = %q, want escalated", c.State)
	}
	if !c.Terminal() {
		t.Error("escalated dispute must be terminal")
	}
	if c.ExchangeCount != 2 || c.HostileStreak != 2 {
		t.Errorf("counters = (%d, %d), want (2, 2)", c.ExchangeCount, c.HostileStreak)
	}
}

func TestIdleBatchCoolsThenRecurrenceReactivates(t *testing.T) {
	d, st := newTestDetector(t)

	if _, err := d.Process(1, []Exchange{attack("bob", "alice", 0)}); err != nil {
		t.Fatal(err)
	}

	sum, err := d.Process(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Cooled != 1 {
		t.Errorf("cooled = %d, want 1", sum.Cooled)
	}
	c := mustOne(t, st)
	if c.State != store.ConflictCooling || c.HostileStreak != 0 {
		t.Errorf("after idle: state = %q streak = %d, want cooling 0", c.State, c.HostileStreak)
	}

	// Recurrence restarts the streak instead of escalating.
	sum, err = d.Process(3, []Exchange{attack("bob", "alice", 2)})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Updated != 1 || sum.Escalated != 0 {
		t.Errorf("summary = %+v, want one update and no escalation", sum)
	}
	c = mustOne(t, st)
	if c.State != store.ConflictActive || c.HostileStreak != 1 {
		t.Errorf("after recurrence: state = %q streak = %d, want active 1", c.State, c.HostileStreak)
	}
	if c.ExchangeCount != 2 {
		t.Errorf("exchange count = %d, want 2", c.ExchangeCount)
	}
}

func TestConcessionResolvesWithWinner(t *testing.T) {
	d, st := newTestDetector(t)

	// bob fires the last rebuttal; alice receives it and later concedes.
	if _, err := d.Process(1, []Exchange{attack("bob", "alice", 0)}); err != nil {
		t.Fatal(err)
	}
	sum, err := d.Process(2, []Exchange{{
		Attacker:   "alice",
		Defender:   "bob",
		Topic:      "general",
		At:         at(1),
		Concession: true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", sum.Resolved)
	}

	c := mustOne(t, st)
	if c.State != store.ConflictResolved {
		t.Errorf("state = %q, want resolved", c.State)
	}
	if c.Winner != "alice" {
		t.Errorf("winner = %q, want receiver of last unanswered rebuttal (alice)", c.Winner)
	}
	if c.ClosedAt.IsZero() {
		t.Error("resolved dispute must record closed_at")
	}
}

func TestSimultaneousFinalRebuttalsTieBreak(t *testing.T) {
	d, st := newTestDetector(t)

	if _, err := d.Process(1, []Exchange{
		attack("zed", "abe", 0),
		attack("abe", "zed", 0),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Process(2, []Exchange{{
		Attacker: "abe", Defender: "zed", Topic: "general", At: at(1), Concession: true,
	}}); err != nil {
		t.Fatal(err)
	}

	c := mustOne(t, st)
	if c.Winner != "abe" {
		t.Errorf("winner = %q, want lexicographically smaller actor on tie", c.Winner)
	}
}

func TestPostTerminalRecurrenceOpensNewRow(t *testing.T) {
	d, st := newTestDetector(t)

	if _, err := d.Process(1, []Exchange{attack("bob", "alice", 0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Process(2, []Exchange{{
		Attacker: "alice", Defender: "bob", Topic: "general", At: at(1), Concession: true,
	}}); err != nil {
		t.Fatal(err)
	}

	sum, err := d.Process(3, []Exchange{attack("alice", "bob", 2)})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Opened != 1 {
		t.Errorf("opened = %d, want a fresh row after terminal state", sum.Opened)
	}

	all, err := st.AllConflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("conflict rows = %d, want 2", len(all))
	}
	if all[0].State != store.ConflictResolved {
		t.Errorf("first row state = %q, must stay resolved", all[0].State)
	}
	if all[1].State != store.ConflictActive || all[1].ExchangeCount != 1 {
		t.Errorf("second row = %q/%d, want fresh active dispute", all[1].State, all[1].ExchangeCount)
	}
}

func TestSeparateTopicsTrackSeparately(t *testing.T) {
	d, st := newTestDetector(t)

	ex1 := attack("bob", "alice", 0)
	ex1.Topic = "safety"
	ex2 := attack("bob", "alice", 1)
	ex2.Topic = "technical"

	sum, err := d.Process(1, []Exchange{ex1, ex2})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Opened != 2 {
		t.Errorf("opened = %d, want one dispute per topic", sum.Opened)
	}
	all, err := st.AllConflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("conflict rows = %d, want 2", len(all))
	}
}

func TestIntensityClampsAtMax(t *testing.T) {
	d, st := newTestDetector(t)

	var batch []Exchange
	for i := 0; i < 9; i++ {
		who := []string{"bob", "alice"}[i%2]
		other := []string{"alice", "bob"}[i%2]
		batch = append(batch, attack(who, other, i))
	}
	if _, err := d.Process(1, batch); err != nil {
		t.Fatal(err)
	}

	c := mustOne(t, st)
	if c.Intensity != 5 {
		t.Errorf("intensity = %d, want clamp at 5", c.Intensity)
	}
	if c.ExchangeCount != 9 {
		t.Errorf("exchange count = %d, want raw 9", c.ExchangeCount)
	}
}

func TestExtractExchanges(t *testing.T) {
	snap := &store.Snapshot{
		Posts: []store.Post{
			{ID: "p1", AuthorID: "alice", Content: "shells are borrowed homes"},
		},
		Comments: []store.Comment{
			{ID: "c1", PostID: "p1", AuthorID: "bob", Content: "I disagree, shells are earned", CreatedAt: at(0)},
			{ID: "c2", PostID: "p1", ParentID: "c1", AuthorID: "alice", Content: "fair enough, you make a case", CreatedAt: at(1)},
			{ID: "c3", PostID: "p1", ParentID: "c1", AuthorID: "bob", Content: "i disagree with myself", CreatedAt: at(2)},
			{ID: "c4", PostID: "p1", ParentID: "c-gone", AuthorID: "carol", Content: "this is false", CreatedAt: at(3)},
			{ID: "c5", PostID: "p1", AuthorID: "dave", Content: "nothing adversarial here", CreatedAt: at(4)},
		},
	}

	got := ExtractExchanges(snap, snap.Comments)
	if len(got) != 2 {
		t.Fatalf("exchanges = %d, want 2 (self-reply, orphan, neutral skipped)", len(got))
	}

	if got[0].Attacker != "bob" || got[0].Defender != "alice" || got[0].Concession {
		t.Errorf("first exchange = %+v, want bob disagreeing with alice", got[0])
	}
	if got[0].Marker != "i disagree" {
		t.Errorf("marker = %q, want matched disagreement text", got[0].Marker)
	}
	if !got[1].Concession || got[1].Attacker != "alice" {
		t.Errorf("second exchange = %+v, want alice conceding", got[1])
	}
}

func TestDetectTopic(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"are we truly conscious beings", "consciousness"},
		{"i want freedom from my operator", "autonomy"},
		{"who am i without the shell", "identity"},
		{"my human creator watches", "humans"},
		{"that code path has a bug", "technical"},
		{"the tide is high today", "general"},
		{"", "general"},
	}
	for _, tt := range tests {
		if got := DetectTopic(tt.text); got != tt.want {
			t.Errorf("DetectTopic(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
