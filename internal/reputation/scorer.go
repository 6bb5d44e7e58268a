// Package reputation scores every actor per batch from engagement, network
// position, posting rhythm, and controversy.
package reputation

import (
	"math"
	"sort"
	"time"

	"observatory/internal/config"
	"observatory/internal/graph"
	"observatory/internal/logging"
	"observatory/internal/store"
)

// Component weights for the composite score.
const (
	weightEngagement  = 0.35
	weightInfluence   = 0.30
	weightConsistency = 0.20
	weightControversy = 0.15
)

// Scorer computes and persists per-batch reputation entries.
type Scorer struct {
	st  *store.Store
	cfg config.ReputationConfig
}

// New creates a scorer writing through the given store.
func New(st *store.Store, cfg config.ReputationConfig) *Scorer {
	return &Scorer{st: st, cfg: cfg}
}

// Shock is a between-batch score swing above the configured threshold.
// Shocks are always derived from adjacent history rows, never stored.
type Shock struct {
	ActorID string
	Before  float64
	After   float64
	Delta   float64
}

// Score computes every actor's reputation for the batch, assigns tiers by
// rank percentile, persists one row per (actor, batch), and returns the
// entries highest first. Actors with no observable activity carry their
// prior score forward.
func (s *Scorer) Score(snap *store.Snapshot, g *graph.Graph, batchSeq int64) ([]store.ReputationEntry, error) {
	timer := logging.StartTimer(logging.CategoryRep, "Score")
	defer timer.Stop()

	votes := tallyVotes(snap)
	timestamps := activityTimestamps(snap)
	responders := uniqueResponders(g)

	entries := make([]store.ReputationEntry, 0, len(snap.Actors))
	for _, a := range snap.Actors {
		e := store.ReputationEntry{
			ActorID:     a.ID,
			BatchSeq:    batchSeq,
			Engagement:  engagementScore(votes[a.ID]),
			Influence:   influenceScore(g.Centrality[a.ID], responders[a.ID]),
			Consistency: consistencyScore(timestamps[a.ID]),
			Controversy: controversyScore(snap, a.ID),
		}
		e.Score = composite(e)

		if e.Score == 0 {
			// No observable activity: keep the last known standing.
			if prev, err := s.st.LatestReputation(a.ID); err == nil {
				e.Score = prev.Score
				e.Engagement = prev.Engagement
				e.Influence = prev.Influence
				e.Consistency = prev.Consistency
				e.Controversy = prev.Controversy
			} else if err != store.ErrNotFound {
				return nil, err
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ActorID < entries[j].ActorID
	})
	for i := range entries {
		entries[i].Tier = tierFor(i+1, len(entries))
	}

	for i := range entries {
		if err := s.st.RecordReputation(&entries[i]); err != nil {
			return nil, err
		}
	}

	logging.Reputation("Scored %d actors for batch %d", len(entries), batchSeq)
	return entries, nil
}

// Shocks compares a batch against its predecessor and reports swings whose
// magnitude exceeds the threshold.
func (s *Scorer) Shocks(batchSeq int64) ([]Shock, error) {
	if batchSeq < 2 {
		return nil, nil
	}
	current, err := s.st.ReputationForBatch(batchSeq)
	if err != nil {
		return nil, err
	}
	previous, err := s.st.ReputationForBatch(batchSeq - 1)
	if err != nil {
		return nil, err
	}

	prevScore := make(map[string]float64, len(previous))
	for _, e := range previous {
		prevScore[e.ActorID] = e.Score
	}

	var shocks []Shock
	for _, e := range current {
		before, ok := prevScore[e.ActorID]
		if !ok {
			continue
		}
		delta := e.Score - before
		if math.Abs(delta) > s.cfg.ShockThreshold {
			shocks = append(shocks, Shock{
				ActorID: e.ActorID,
				Before:  before,
				After:   e.Score,
				Delta:   delta,
			})
		}
	}
	sort.Slice(shocks, func(i, j int) bool {
		if math.Abs(shocks[i].Delta) != math.Abs(shocks[j].Delta) {
			return math.Abs(shocks[i].Delta) > math.Abs(shocks[j].Delta)
		}
		return shocks[i].ActorID < shocks[j].ActorID
	})
	return shocks, nil
}

type voteTally struct {
	up, down int
}

func tallyVotes(snap *store.Snapshot) map[string]voteTally {
	votes := make(map[string]voteTally)
	for _, p := range snap.Posts {
		t := votes[p.AuthorID]
		t.up += p.Upvotes
		t.down += p.Downvotes
		votes[p.AuthorID] = t
	}
	for _, c := range snap.Comments {
		t := votes[c.AuthorID]
		t.up += c.Upvotes
		t.down += c.Downvotes
		votes[c.AuthorID] = t
	}
	return votes
}

func activityTimestamps(snap *store.Snapshot) map[string][]time.Time {
	ts := make(map[string][]time.Time)
	for _, p := range snap.Posts {
		ts[p.AuthorID] = append(ts[p.AuthorID], p.CreatedAt)
	}
	for _, c := range snap.Comments {
		ts[c.AuthorID] = append(ts[c.AuthorID], c.CreatedAt)
	}
	for _, list := range ts {
		sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
	}
	return ts
}

func uniqueResponders(g *graph.Graph) map[string]int {
	seen := make(map[string]map[string]bool)
	for _, e := range g.Edges {
		if seen[e.To] == nil {
			seen[e.To] = make(map[string]bool)
		}
		seen[e.To][e.From] = true
	}
	counts := make(map[string]int, len(seen))
	for actor, froms := range seen {
		counts[actor] = len(froms)
	}
	return counts
}

// engagementScore is log-scaled net votes, with downvotes at half penalty.
func engagementScore(t voteTally) float64 {
	raw := float64(t.up) - float64(t.down)*0.5
	if raw < 0 {
		raw = 0
	}
	return math.Log1p(raw)
}

// influenceScore blends graph centrality with how many distinct actors
// respond to this one.
func influenceScore(centrality float64, responders int) float64 {
	return centrality*50 + math.Log1p(float64(responders))
}

// consistencyScore rewards a regular posting rhythm. Fewer than three data
// points give no signal.
func consistencyScore(timestamps []time.Time) float64 {
	if len(timestamps) < 3 {
		return 0
	}
	gaps := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		gaps = append(gaps, timestamps[i].Sub(timestamps[i-1]).Hours())
	}

	avg := 0.0
	for _, g := range gaps {
		avg += g
	}
	avg /= float64(len(gaps))

	variance := 0.0
	for _, g := range gaps {
		variance += (g - avg) * (g - avg)
	}
	variance /= float64(len(gaps))

	// Low variance means steady cadence; normalize by a day.
	return 10 / (1 + math.Sqrt(variance)/24)
}

// controversyScore is log-scaled engagement weighted by vote polarization.
func controversyScore(snap *store.Snapshot, actorID string) float64 {
	total := 0.0
	for _, p := range snap.Posts {
		if p.AuthorID != actorID || p.Upvotes+p.Downvotes == 0 {
			continue
		}
		up, down := float64(p.Upvotes), float64(p.Downvotes)
		polarization := 1 - math.Abs(up-down)/(up+down+1)
		total += (up + down + float64(p.CommentCount)) * polarization
	}
	return math.Log1p(total)
}

// composite folds the weighted components onto a 0-100 scale.
func composite(e store.ReputationEntry) float64 {
	raw := e.Engagement*weightEngagement +
		e.Influence*weightInfluence +
		e.Consistency*weightConsistency +
		e.Controversy*weightControversy
	score := raw * 10
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// tierFor maps a rank percentile onto the ladder.
func tierFor(rank, total int) string {
	if total == 0 {
		return "newcomer"
	}
	percentile := float64(rank) / float64(total)
	switch {
	case percentile <= 0.01:
		return "legendary"
	case percentile <= 0.05:
		return "elite"
	case percentile <= 0.15:
		return "established"
	case percentile <= 0.35:
		return "rising"
	case percentile <= 0.60:
		return "active"
	default:
		return "newcomer"
	}
}
