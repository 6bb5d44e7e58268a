// Package conflict tracks dispute lifecycles between actor pairs: when an
// argument starts, cools off, resolves, or escalates.
package conflict

import (
	"sort"
	"strings"
	"time"

	"observatory/internal/config"
	"observatory/internal/logging"
	"observatory/internal/store"
)

// Exchange is one adversarial or conceding reply between two actors.
type Exchange struct {
	Attacker   string
	Defender   string
	Topic      string
	Marker     string
	ItemID     string
	At         time.Time
	Concession bool
}

// Detector runs the dispute state machine over each batch of exchanges.
type Detector struct {
	st  *store.Store
	cfg config.ConflictConfig
}

// New creates a detector writing through the given store.
func New(st *store.Store, cfg config.ConflictConfig) *Detector {
	if cfg.MaxIntensity <= 0 {
		cfg.MaxIntensity = 5
	}
	if cfg.EscalationWindow <= 0 {
		cfg.EscalationWindow = 2
	}
	return &Detector{st: st, cfg: cfg}
}

// Summary counts the state transitions one batch produced.
type Summary struct {
	Opened    int
	Updated   int
	Resolved  int
	Escalated int
	Cooled    int
}

// ExtractExchanges scans the batch's comments for disagreement and concession
// markers. Only replies count: the defender is the parent comment's author,
// or the post author for top-level comments. Self-replies never open a
// dispute.
func ExtractExchanges(snap *store.Snapshot, comments []store.Comment) []Exchange {
	postAuthor := make(map[string]string, len(snap.Posts))
	for _, p := range snap.Posts {
		postAuthor[p.ID] = p.AuthorID
	}
	commentAuthor := make(map[string]string, len(snap.Comments))
	for _, c := range snap.Comments {
		commentAuthor[c.ID] = c.AuthorID
	}

	var exchanges []Exchange
	for _, c := range comments {
		var defender string
		if c.ParentID != "" {
			defender = commentAuthor[c.ParentID]
		} else {
			defender = postAuthor[c.PostID]
		}
		if defender == "" || defender == c.AuthorID {
			continue
		}

		text := strings.ToLower(c.Content)
		if matchesAny(text, concessionMarkers) {
			exchanges = append(exchanges, Exchange{
				Attacker:   c.AuthorID,
				Defender:   defender,
				Topic:      DetectTopic(text),
				ItemID:     c.ID,
				At:         c.CreatedAt,
				Concession: true,
			})
			continue
		}
		if marker, ok := firstMatch(text, disagreementMarkers); ok {
			exchanges = append(exchanges, Exchange{
				Attacker: c.AuthorID,
				Defender: defender,
				Topic:    DetectTopic(text),
				Marker:   marker,
				ItemID:   c.ID,
				At:       c.CreatedAt,
			})
		}
	}
	return exchanges
}

type disputeKey struct {
	a, b, topic string
}

func pairOf(x, y string) (string, string) {
	if x < y {
		return x, y
	}
	return y, x
}

// Process applies one batch of exchanges to the dispute ledger.
//
// New adversarial pairs open an active dispute. Existing disputes accumulate
// exchanges; hostility sustained across consecutive batches escalates after
// the configured window. A concession resolves every open dispute for the
// pair. Active disputes untouched this batch move to cooling; terminal rows
// are never revisited, so recurrence after resolution opens a fresh row.
func (d *Detector) Process(batchSeq int64, exchanges []Exchange) (*Summary, error) {
	timer := logging.StartTimer(logging.CategoryConflict, "Process")
	defer timer.Stop()

	sum := &Summary{}

	adversarial := make(map[disputeKey][]Exchange)
	conceded := make(map[[2]string]bool)
	for _, ex := range exchanges {
		a, b := pairOf(ex.Attacker, ex.Defender)
		if ex.Concession {
			conceded[[2]string{a, b}] = true
			continue
		}
		key := disputeKey{a: a, b: b, topic: ex.Topic}
		adversarial[key] = append(adversarial[key], ex)
	}

	keys := make([]disputeKey, 0, len(adversarial))
	for k := range adversarial {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		if keys[i].b != keys[j].b {
			return keys[i].b < keys[j].b
		}
		return keys[i].topic < keys[j].topic
	})

	for _, key := range keys {
		group := adversarial[key]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].At.Equal(group[j].At) {
				return group[i].At.Before(group[j].At)
			}
			return group[i].Attacker < group[j].Attacker
		})

		existing, err := d.st.OpenConflictFor(key.a, key.b, key.topic)
		if err != nil && err != store.ErrNotFound {
			return nil, err
		}

		if existing == nil {
			c := &store.Conflict{
				ActorA:        key.a,
				ActorB:        key.b,
				Topic:         key.topic,
				State:         store.ConflictActive,
				Intensity:     d.clampIntensity(len(group)),
				ExchangeCount: len(group),
				HostileStreak: 1,
				LastBatch:     batchSeq,
				LastRebutter:  lastRebutter(group),
				TopicMarkers:  mergeMarkers("", group),
			}
			if _, err := d.st.OpenConflict(c); err != nil {
				return nil, err
			}
			sum.Opened++
			logging.Conflict("Opened dispute %s vs %s over %s (%d exchanges)",
				key.a, key.b, key.topic, len(group))
			continue
		}

		// Recurrence while cooling restarts the streak; back-to-back hostile
		// batches extend it.
		switch {
		case existing.State == store.ConflictCooling:
			existing.HostileStreak = 1
		case existing.LastBatch == batchSeq-1:
			existing.HostileStreak++
		default:
			existing.HostileStreak = 1
		}

		existing.State = store.ConflictActive
		existing.ExchangeCount += len(group)
		existing.Intensity = d.clampIntensity(existing.ExchangeCount)
		existing.LastBatch = batchSeq
		existing.LastRebutter = lastRebutter(group)
		existing.TopicMarkers = mergeMarkers(existing.TopicMarkers, group)

		if existing.HostileStreak >= d.cfg.EscalationWindow {
			existing.State = store.ConflictEscalated
			sum.Escalated++
			logging.Conflict("Escalated dispute %d (%s vs %s, streak %d)",
				existing.ID, key.a, key.b, existing.HostileStreak)
		} else {
			sum.Updated++
		}
		if err := d.st.UpdateConflict(existing); err != nil {
			return nil, err
		}
	}

	if err := d.applyConcessions(conceded, sum); err != nil {
		return nil, err
	}
	if err := d.coolIdle(batchSeq, sum); err != nil {
		return nil, err
	}

	logging.ConflictDebug("Batch %d: %d opened, %d updated, %d resolved, %d escalated, %d cooled",
		batchSeq, sum.Opened, sum.Updated, sum.Resolved, sum.Escalated, sum.Cooled)
	return sum, nil
}

// applyConcessions resolves every open dispute for a pair that conceded this
// batch. The winner is the receiver of the last unanswered rebuttal;
// simultaneous final rebuttals break to the lexicographically smaller actor.
func (d *Detector) applyConcessions(conceded map[[2]string]bool, sum *Summary) error {
	if len(conceded) == 0 {
		return nil
	}
	open, err := d.st.NonTerminalConflicts()
	if err != nil {
		return err
	}
	for i := range open {
		c := &open[i]
		if !conceded[[2]string{c.ActorA, c.ActorB}] {
			continue
		}
		c.State = store.ConflictResolved
		c.Winner = winnerOf(c)
		if err := d.st.UpdateConflict(c); err != nil {
			return err
		}
		sum.Resolved++
		logging.Conflict("Resolved dispute %d (%s vs %s), winner %s",
			c.ID, c.ActorA, c.ActorB, c.Winner)
	}
	return nil
}

// coolIdle moves active disputes with no exchange this batch to cooling.
func (d *Detector) coolIdle(batchSeq int64, sum *Summary) error {
	open, err := d.st.NonTerminalConflicts()
	if err != nil {
		return err
	}
	for i := range open {
		c := &open[i]
		if c.State != store.ConflictActive || c.LastBatch >= batchSeq {
			continue
		}
		c.State = store.ConflictCooling
		c.HostileStreak = 0
		if err := d.st.UpdateConflict(c); err != nil {
			return err
		}
		sum.Cooled++
	}
	return nil
}

func (d *Detector) clampIntensity(exchanges int) int {
	if exchanges > d.cfg.MaxIntensity {
		return d.cfg.MaxIntensity
	}
	if exchanges < 1 {
		return 1
	}
	return exchanges
}

// lastRebutter is the sender of the final exchange in the group, or empty
// when both actors fired simultaneously.
func lastRebutter(group []Exchange) string {
	if len(group) == 0 {
		return ""
	}
	last := group[len(group)-1]
	senders := map[string]bool{last.Attacker: true}
	for i := len(group) - 2; i >= 0; i-- {
		if !group[i].At.Equal(last.At) {
			break
		}
		senders[group[i].Attacker] = true
	}
	if len(senders) > 1 {
		return ""
	}
	return last.Attacker
}

// winnerOf picks the receiver of the last unanswered rebuttal.
func winnerOf(c *store.Conflict) string {
	switch c.LastRebutter {
	case c.ActorA:
		return c.ActorB
	case c.ActorB:
		return c.ActorA
	default:
		// Simultaneous final rebuttals.
		return c.ActorA
	}
}

// mergeMarkers unions the distinct disagreement markers seen so far.
func mergeMarkers(existing string, group []Exchange) string {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range strings.Split(existing, ",") {
		add(strings.TrimSpace(m))
	}
	for _, ex := range group {
		add(ex.Marker)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
