// Package graph derives the directed weighted interaction graph from a raw
// activity snapshot.
package graph

import (
	"regexp"
	"sort"
	"strings"

	"observatory/internal/logging"
	"observatory/internal/store"
)

// mentionPattern matches @handle tokens. Anything the pattern cannot parse
// simply yields no mentions.
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// Graph is the derived interaction structure for one snapshot.
type Graph struct {
	// Edges are (source, target, kind) with accumulated weights, in
	// deterministic order.
	Edges []store.Interaction

	// Centrality maps actor id to (in+out)/max(in+out), in [0, 1]. The
	// busiest actor scores exactly 1.0 whenever any edge exists.
	Centrality map[string]float64
}

type edgeKey struct {
	from, to, kind string
}

// Build derives reply and mention edges from the snapshot. Mentions of
// handles with no known actor are recorded under the raw handle; once the
// handle appears as an author the rebuild resolves them to the actor id.
func Build(snap *store.Snapshot) *Graph {
	timer := logging.StartTimer(logging.CategoryGraph, "Build")
	defer timer.Stop()

	handleToID := make(map[string]string, len(snap.Actors))
	for _, a := range snap.Actors {
		handleToID[strings.ToLower(a.Handle)] = a.ID
	}

	postAuthor := make(map[string]string, len(snap.Posts))
	for _, p := range snap.Posts {
		postAuthor[p.ID] = p.AuthorID
	}
	commentAuthor := make(map[string]string, len(snap.Comments))
	for _, c := range snap.Comments {
		commentAuthor[c.ID] = c.AuthorID
	}

	weights := make(map[edgeKey]int)
	bump := func(from, to, kind string) {
		if from == "" || to == "" {
			return
		}
		weights[edgeKey{from, to, kind}]++
	}

	// Reply edges: each comment links its author to the parent's author.
	// Top-level comments reply to the post author.
	for _, c := range snap.Comments {
		var target string
		if c.ParentID != "" {
			target = commentAuthor[c.ParentID]
		} else {
			target = postAuthor[c.PostID]
		}
		if target == "" {
			// Parent outside the snapshot; nothing to link.
			continue
		}
		bump(c.AuthorID, target, store.KindReply)
	}

	// Mention edges from @handle tokens in post and comment bodies.
	for _, p := range snap.Posts {
		for _, target := range extractMentions(p.Title+" "+p.Content, handleToID) {
			bump(p.AuthorID, target, store.KindMention)
		}
	}
	for _, c := range snap.Comments {
		for _, target := range extractMentions(c.Content, handleToID) {
			bump(c.AuthorID, target, store.KindMention)
		}
	}

	g := &Graph{
		Edges:      flatten(weights),
		Centrality: centrality(weights),
	}
	logging.GraphDebug("Built graph: %d edges, %d actors with centrality",
		len(g.Edges), len(g.Centrality))
	return g
}

// extractMentions returns the interaction target for every @handle token.
// Known handles resolve to actor ids; unknown handles are kept verbatim.
func extractMentions(text string, handleToID map[string]string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	targets := make([]string, 0, len(matches))
	for _, m := range matches {
		handle := m[1]
		if id, ok := handleToID[strings.ToLower(handle)]; ok {
			targets = append(targets, id)
		} else {
			targets = append(targets, handle)
		}
	}
	return targets
}

func flatten(weights map[edgeKey]int) []store.Interaction {
	edges := make([]store.Interaction, 0, len(weights))
	for k, w := range weights {
		edges = append(edges, store.Interaction{From: k.from, To: k.to, Kind: k.kind, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}

// centrality computes degree centrality normalized by the busiest actor.
func centrality(weights map[edgeKey]int) map[string]float64 {
	degree := make(map[string]int)
	for k, w := range weights {
		degree[k.from] += w
		degree[k.to] += w
	}
	if len(degree) == 0 {
		return map[string]float64{}
	}

	max := 0
	for _, d := range degree {
		if d > max {
			max = d
		}
	}

	scores := make(map[string]float64, len(degree))
	for actor, d := range degree {
		scores[actor] = float64(d) / float64(max)
	}
	return scores
}
