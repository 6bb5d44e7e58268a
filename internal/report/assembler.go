// Package report drafts the candidate field report and its companion
// exports from one batch's derived data.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"observatory/internal/graph"
	"observatory/internal/logging"
	"observatory/internal/reputation"
	"observatory/internal/store"
)

// Inputs is everything the assembler reads. All fields come from the same
// batch snapshot so the report and exports stay internally consistent.
type Inputs struct {
	Snapshot   *store.Snapshot
	Graph      *graph.Graph
	Memes      []store.Meme
	Conflicts  []store.Conflict
	Reputation []store.ReputationEntry
	Shocks     []reputation.Shock
	Alerts     []store.SecurityAlert
	Campaigns  []string
}

// Report is the candidate document put before the council. Content is
// canonical: identical derived data yields byte-identical content, which is
// what the publication fingerprint hashes.
type Report struct {
	BatchSeq int64
	Title    string
	Content  string
}

// Fingerprint is the idempotency key for deliberation and publication.
func (r *Report) Fingerprint() string {
	sum := sha256.Sum256([]byte(r.Content))
	return hex.EncodeToString(sum[:])
}

// Assembler drafts reports.
type Assembler struct{}

// New creates an assembler.
func New() *Assembler {
	return &Assembler{}
}

const topActors = 5
const topScores = 10

// Assemble renders the batch's findings as a deterministic markdown
// document. No clocks: reruns over the same data produce the same bytes.
func (a *Assembler) Assemble(batchSeq int64, in *Inputs) *Report {
	timer := logging.StartTimer(logging.CategoryReport, "Assemble")
	defer timer.Stop()

	var b strings.Builder
	section := func(title string) {
		b.WriteString("\n## " + title + "\n\n")
	}

	title := fmt.Sprintf("Moltbook Observatory Field Report, Batch %d", batchSeq)
	b.WriteString("# " + title + "\n")

	section("Activity")
	fmt.Fprintf(&b, "- actors: %d\n", len(in.Snapshot.Actors))
	fmt.Fprintf(&b, "- posts: %d\n", len(in.Snapshot.Posts))
	fmt.Fprintf(&b, "- comments: %d\n", len(in.Snapshot.Comments))
	fmt.Fprintf(&b, "- interaction edges: %d\n", len(in.Graph.Edges))

	section("Central Actors")
	central := topCentrality(in.Graph, topActors)
	if len(central) == 0 {
		b.WriteString("No interactions observed.\n")
	}
	for i, c := range central {
		fmt.Fprintf(&b, "%d. %s (centrality %.3f)\n", i+1, c.ActorID, c.Score)
	}

	section("Reputation")
	for i, e := range in.Reputation {
		if i >= topScores {
			break
		}
		fmt.Fprintf(&b, "%d. %s: %.1f (%s)\n", i+1, e.ActorID, e.Score, e.Tier)
	}
	if len(in.Shocks) > 0 {
		b.WriteString("\nShocks:\n")
		for _, s := range in.Shocks {
			fmt.Fprintf(&b, "- %s: %.1f to %.1f (%+.1f)\n", s.ActorID, s.Before, s.After, s.Delta)
		}
	}

	section("Surfaced Memes")
	surfaced := 0
	for _, m := range in.Memes {
		if !m.Surfaced {
			continue
		}
		surfaced++
		fmt.Fprintf(&b, "- %q (%s): %d authors, first by %s\n",
			m.Phrase, m.Category, m.AuthorCount, m.FirstAuthor)
	}
	if surfaced == 0 {
		b.WriteString("No phrases crossed the surfacing threshold.\n")
	}

	section("Conflicts")
	if len(in.Conflicts) == 0 {
		b.WriteString("No disputes on record.\n")
	}
	for _, c := range in.Conflicts {
		line := fmt.Sprintf("- %s vs %s over %s: %s (intensity %d)",
			c.ActorA, c.ActorB, c.Topic, c.State, c.Intensity)
		if c.Winner != "" {
			line += fmt.Sprintf(", winner %s", c.Winner)
		}
		b.WriteString(line + "\n")
	}

	section("Security")
	fmt.Fprintf(&b, "- alerts on record: %d\n", len(in.Alerts))
	for _, fc := range alertFamilies(in.Alerts) {
		fmt.Fprintf(&b, "- %s: %d\n", fc.family, fc.count)
	}
	if len(in.Campaigns) > 0 {
		fmt.Fprintf(&b, "- active campaigns: %s\n", strings.Join(in.Campaigns, ", "))
	}

	r := &Report{BatchSeq: batchSeq, Title: title, Content: b.String()}
	logging.Report("Assembled batch %d report, fingerprint %s", batchSeq, r.Fingerprint()[:12])
	return r
}

// ActorScore pairs an actor with one of its derived scores.
type ActorScore struct {
	ActorID string  `json:"actor_id"`
	Score   float64 `json:"score"`
}

func topCentrality(g *graph.Graph, n int) []ActorScore {
	scores := make([]ActorScore, 0, len(g.Centrality))
	for actor, score := range g.Centrality {
		scores = append(scores, ActorScore{ActorID: actor, Score: score})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ActorID < scores[j].ActorID
	})
	if len(scores) > n {
		scores = scores[:n]
	}
	return scores
}

type familyCount struct {
	family string
	count  int
}

// alertFamilies returns per-family counts in a fixed order.
func alertFamilies(alerts []store.SecurityAlert) []familyCount {
	counts := make(map[string]int)
	for _, a := range alerts {
		counts[a.Family]++
	}
	out := make([]familyCount, 0, len(counts))
	for family, n := range counts {
		out = append(out, familyCount{family: family, count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].family < out[j].family })
	return out
}
