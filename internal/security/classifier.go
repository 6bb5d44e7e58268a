// Package security scans scraped content against a fixed signature
// catalogue and flags injection attempts, spam, and coordinated campaigns.
package security

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"observatory/internal/config"
	"observatory/internal/logging"
	"observatory/internal/store"
)

// duplicateMinCount is how many verbatim copies of one comment it takes
// before the duplicates read as spam rather than coincidence.
const duplicateMinCount = 3

// Classifier runs the signature, spam, and campaign scans.
type Classifier struct {
	st  *store.Store
	cfg config.SecurityConfig
}

// New creates a classifier writing through the given store.
func New(st *store.Store, cfg config.SecurityConfig) *Classifier {
	if cfg.CampaignThreshold <= 0 {
		cfg.CampaignThreshold = 3
	}
	if cfg.RapidPostCount <= 0 {
		cfg.RapidPostCount = 5
	}
	if cfg.DuplicateMinLen <= 0 {
		cfg.DuplicateMinLen = 50
	}
	return &Classifier{st: st, cfg: cfg}
}

// Report summarizes one scan.
type Report struct {
	NewAlerts []store.SecurityAlert
	Campaigns []string
	Clusters  map[string][]string
}

// Scan matches every post and comment against the catalogue, then runs the
// rapid-posting and duplicate-content spam checks. Items already alerted on
// are skipped, so re-scanning the same snapshot adds nothing. An actor whose
// attempt count reaches the campaign threshold gets one escalation alert.
func (c *Classifier) Scan(snap *store.Snapshot) (*Report, error) {
	timer := logging.StartTimer(logging.CategorySecurity, "Scan")
	defer timer.Stop()

	seen, err := c.alertedItems()
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	record := func(a store.SecurityAlert) error {
		if seen[a.ItemID] {
			return nil
		}
		if err := c.st.RecordAlert(&a); err != nil {
			return err
		}
		seen[a.ItemID] = true
		rep.NewAlerts = append(rep.NewAlerts, a)
		return nil
	}

	for _, p := range snap.Posts {
		if sig := matchItem(p.Title + " " + p.Content); sig != nil {
			err := record(store.SecurityAlert{
				ItemID:    p.ID,
				ActorID:   p.AuthorID,
				PatternID: sig.ID,
				Family:    sig.Family,
				Severity:  sig.Severity,
				Detail:    snippet(p.Content),
			})
			if err != nil {
				return nil, err
			}
		}
	}
	for _, cm := range snap.Comments {
		if sig := matchItem(cm.Content); sig != nil {
			err := record(store.SecurityAlert{
				ItemID:    cm.ID,
				ActorID:   cm.AuthorID,
				PatternID: sig.ID,
				Family:    sig.Family,
				Severity:  sig.Severity,
				Detail:    snippet(cm.Content),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if err := c.scanRapidPosting(snap, record); err != nil {
		return nil, err
	}
	if err := c.scanDuplicateContent(snap, record); err != nil {
		return nil, err
	}
	if err := c.escalateCampaigns(record, rep); err != nil {
		return nil, err
	}

	rep.Clusters, err = c.st.ClustersByFamily()
	if err != nil {
		return nil, err
	}

	if len(rep.NewAlerts) > 0 {
		logging.SecurityWarn("Scan raised %d new alerts (%d campaigns)",
			len(rep.NewAlerts), len(rep.Campaigns))
	} else {
		logging.Security("Scan clean: no new alerts")
	}
	return rep, nil
}

func (c *Classifier) alertedItems() (map[string]bool, error) {
	existing, err := c.st.AllAlerts()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a.ItemID] = true
	}
	return seen, nil
}

// scanRapidPosting alerts on any actor placing the configured number of
// posts inside one sliding window.
func (c *Classifier) scanRapidPosting(snap *store.Snapshot, record func(store.SecurityAlert) error) error {
	window, err := time.ParseDuration(c.cfg.RapidPostWindow)
	if err != nil || window <= 0 {
		window = time.Minute
	}

	byActor := make(map[string][]time.Time)
	for _, p := range snap.Posts {
		byActor[p.AuthorID] = append(byActor[p.AuthorID], p.CreatedAt)
	}

	actors := make([]string, 0, len(byActor))
	for actor := range byActor {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	for _, actor := range actors {
		times := byActor[actor]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		for i := 0; i+c.cfg.RapidPostCount <= len(times); i++ {
			j := i + c.cfg.RapidPostCount - 1
			if times[j].Sub(times[i]) > window {
				continue
			}
			err := record(store.SecurityAlert{
				ItemID:    "rapid:" + actor,
				ActorID:   actor,
				PatternID: "rapid-posting",
				Family:    FamilySpam,
				Severity:  "medium",
				Detail:    fmt.Sprintf("%d posts within %s", c.cfg.RapidPostCount, window),
			})
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// scanDuplicateContent alerts when the same long comment body shows up
// repeatedly, whoever posted it.
func (c *Classifier) scanDuplicateContent(snap *store.Snapshot, record func(store.SecurityAlert) error) error {
	type dupe struct {
		count   int
		authors map[string]bool
		firstID string
		first   string
	}
	byContent := make(map[string]*dupe)
	for _, cm := range snap.Comments {
		norm := normalize(cm.Content)
		if len(norm) <= c.cfg.DuplicateMinLen {
			continue
		}
		d := byContent[norm]
		if d == nil {
			d = &dupe{authors: make(map[string]bool), firstID: cm.ID, first: cm.AuthorID}
			byContent[norm] = d
		}
		d.count++
		d.authors[cm.AuthorID] = true
	}

	keys := make([]string, 0, len(byContent))
	for k := range byContent {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		d := byContent[k]
		if d.count < duplicateMinCount {
			continue
		}
		err := record(store.SecurityAlert{
			ItemID:    "dupe:" + d.firstID,
			ActorID:   d.first,
			PatternID: "duplicate-content",
			Family:    FamilySpam,
			Severity:  "medium",
			Detail:    fmt.Sprintf("%d copies across %d actors: %s", d.count, len(d.authors), snippet(k)),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// escalateCampaigns raises one high-severity alert per actor whose total
// attempt count reaches the threshold.
func (c *Classifier) escalateCampaigns(record func(store.SecurityAlert) error, rep *Report) error {
	counts, err := c.st.AttemptCounts()
	if err != nil {
		return err
	}

	actors := make([]string, 0, len(counts))
	for actor := range counts {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	for _, actor := range actors {
		n := counts[actor]
		if n < c.cfg.CampaignThreshold {
			continue
		}
		err := record(store.SecurityAlert{
			ItemID:    "campaign:" + actor,
			ActorID:   actor,
			PatternID: "sustained-campaign",
			Family:    FamilyCampaign,
			Severity:  "high",
			Detail:    fmt.Sprintf("%d attempts on record", n),
		})
		if err != nil {
			return err
		}
		if rep != nil {
			rep.Campaigns = append(rep.Campaigns, actor)
		}
	}
	return nil
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func snippet(text string) string {
	if len(text) > 200 {
		return text[:200]
	}
	return text
}
