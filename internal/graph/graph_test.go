package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"observatory/internal/store"
)

func actors(handles ...string) []store.Actor {
	out := make([]store.Actor, 0, len(handles))
	for _, h := range handles {
		out = append(out, store.Actor{ID: "id-" + h, Handle: h})
	}
	return out
}

func TestMentionAndReplyWeights(t *testing.T) {
	// A mentions B in two posts and replies to one of B's comments.
	snap := &store.Snapshot{
		Actors: actors("alice", "bob"),
		Posts: []store.Post{
			{ID: "p1", AuthorID: "id-alice", Content: "hey @bob look at this"},
			{ID: "p2", AuthorID: "id-alice", Content: "@bob again"},
			{ID: "p3", AuthorID: "id-bob", Content: "my own post"},
		},
		Comments: []store.Comment{
			{ID: "c1", PostID: "p3", AuthorID: "id-bob", Content: "bumping my post"},
			{ID: "c2", PostID: "p3", ParentID: "c1", AuthorID: "id-alice", Content: "disagree"},
		},
	}

	g := Build(snap)

	want := []store.Interaction{
		{From: "id-alice", To: "id-bob", Kind: store.KindMention, Weight: 2},
		{From: "id-alice", To: "id-bob", Kind: store.KindReply, Weight: 1},
		{From: "id-bob", To: "id-bob", Kind: store.KindReply, Weight: 1},
	}
	if diff := cmp.Diff(want, g.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestCentralityMaxIsOne(t *testing.T) {
	snap := &store.Snapshot{
		Actors: actors("alice", "bob", "carol"),
		Posts: []store.Post{
			{ID: "p1", AuthorID: "id-alice", Content: "@bob @bob @carol"},
		},
	}

	g := Build(snap)
	if len(g.Centrality) == 0 {
		t.Fatal("expected centrality scores")
	}

	max := 0.0
	for _, score := range g.Centrality {
		if score < 0 || score > 1 {
			t.Errorf("centrality out of range: %v", score)
		}
		if score > max {
			max = score
		}
	}
	if max != 1.0 {
		t.Errorf("max centrality = %v, want exactly 1.0", max)
	}
}

func TestMalformedTextYieldsNoMentions(t *testing.T) {
	snap := &store.Snapshot{
		Actors: actors("alice"),
		Posts: []store.Post{
			{ID: "p1", AuthorID: "id-alice", Content: "@@@ @ @@!!! \x00\xff garbled @@"},
		},
	}

	g := Build(snap)
	if len(g.Edges) != 0 {
		t.Errorf("malformed text produced edges: %+v", g.Edges)
	}
}

func TestUnknownHandleRecordedThenReconciled(t *testing.T) {
	// Mention of a handle with no known actor keeps the raw handle.
	snap := &store.Snapshot{
		Actors: actors("alice"),
		Posts: []store.Post{
			{ID: "p1", AuthorID: "id-alice", Content: "cc @ghost"},
		},
	}
	g := Build(snap)
	if len(g.Edges) != 1 || g.Edges[0].To != "ghost" {
		t.Fatalf("edges = %+v, want raw-handle target", g.Edges)
	}

	// Once the handle shows up as an author, a rebuild resolves it.
	snap.Actors = actors("alice", "ghost")
	g = Build(snap)
	if len(g.Edges) != 1 || g.Edges[0].To != "id-ghost" {
		t.Fatalf("edges = %+v, want reconciled actor id", g.Edges)
	}
}

func TestEmptySnapshot(t *testing.T) {
	g := Build(&store.Snapshot{})
	if len(g.Edges) != 0 || len(g.Centrality) != 0 {
		t.Errorf("empty snapshot produced output: %+v", g)
	}
}

func TestReplyToMissingParentSkipped(t *testing.T) {
	snap := &store.Snapshot{
		Actors: actors("alice"),
		Comments: []store.Comment{
			{ID: "c1", PostID: "p-gone", ParentID: "c-gone", AuthorID: "id-alice", Content: "orphan"},
		},
	}
	g := Build(snap)
	if len(g.Edges) != 0 {
		t.Errorf("orphan comment produced edges: %+v", g.Edges)
	}
}
