// Package meme tracks recurring phrases across actors: who said it first,
// and how far it spread.
package meme

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"observatory/internal/config"
	"observatory/internal/logging"
	"observatory/internal/store"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	punctPattern      = regexp.MustCompile(`[^\w\s'"-]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Tracker extracts candidate phrases and rolls them up into memes.
type Tracker struct {
	cfg config.MemeConfig
}

// New creates a tracker with the given thresholds.
func New(cfg config.MemeConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Result holds the rollups and the first-use ledger for one snapshot.
type Result struct {
	Memes       []store.Meme
	Occurrences []store.MemeOccurrence
}

type occurrence struct {
	author string
	itemID string
	seenAt time.Time
}

// Analyze extracts phrases from every post and comment. A phrase surfaces as
// a meme once its distinct-author count reaches the configured threshold;
// sub-threshold candidates are retained so they can surface later.
func (t *Tracker) Analyze(snap *store.Snapshot) *Result {
	timer := logging.StartTimer(logging.CategoryMeme, "Analyze")
	defer timer.Stop()

	// phrase -> author -> earliest use
	firstUse := make(map[string]map[string]occurrence)
	record := func(text, author, itemID string, seenAt time.Time) {
		for _, phrase := range t.extractPhrases(text) {
			byAuthor := firstUse[phrase]
			if byAuthor == nil {
				byAuthor = make(map[string]occurrence)
				firstUse[phrase] = byAuthor
			}
			prev, seen := byAuthor[author]
			if !seen || seenAt.Before(prev.seenAt) {
				byAuthor[author] = occurrence{author: author, itemID: itemID, seenAt: seenAt}
			}
		}
	}

	for _, p := range snap.Posts {
		record(p.Title+" "+p.Content, p.AuthorID, p.ID, p.CreatedAt)
	}
	for _, c := range snap.Comments {
		record(c.Content, c.AuthorID, c.ID, c.CreatedAt)
	}

	res := &Result{}
	for phrase, byAuthor := range firstUse {
		occs := make([]occurrence, 0, len(byAuthor))
		for _, o := range byAuthor {
			occs = append(occs, o)
		}
		// Earliest first; simultaneous first uses break to the smaller
		// author id.
		sort.Slice(occs, func(i, j int) bool {
			if !occs[i].seenAt.Equal(occs[j].seenAt) {
				return occs[i].seenAt.Before(occs[j].seenAt)
			}
			return occs[i].author < occs[j].author
		})

		first := occs[0]
		res.Memes = append(res.Memes, store.Meme{
			Phrase:          phrase,
			Category:        Categorize(phrase),
			AuthorCount:     len(byAuthor),
			OccurrenceCount: len(occs),
			FirstSeen:       first.seenAt,
			FirstAuthor:     first.author,
			Surfaced:        len(byAuthor) >= t.cfg.MinAuthors,
		})
		for _, o := range occs {
			res.Occurrences = append(res.Occurrences, store.MemeOccurrence{
				Phrase:   phrase,
				AuthorID: o.author,
				ItemID:   o.itemID,
				SeenAt:   o.seenAt,
			})
		}
	}

	sort.Slice(res.Memes, func(i, j int) bool {
		if res.Memes[i].AuthorCount != res.Memes[j].AuthorCount {
			return res.Memes[i].AuthorCount > res.Memes[j].AuthorCount
		}
		return res.Memes[i].Phrase < res.Memes[j].Phrase
	})

	// Cap retained candidates; surfaced memes always stay.
	if t.cfg.MaxCandidates > 0 && len(res.Memes) > t.cfg.MaxCandidates {
		res.Memes = res.Memes[:t.cfg.MaxCandidates]
		kept := make(map[string]bool, len(res.Memes))
		for _, m := range res.Memes {
			kept[m.Phrase] = true
		}
		filtered := res.Occurrences[:0]
		for _, o := range res.Occurrences {
			if kept[o.Phrase] {
				filtered = append(filtered, o)
			}
		}
		res.Occurrences = filtered
	}

	sort.Slice(res.Occurrences, func(i, j int) bool {
		if res.Occurrences[i].Phrase != res.Occurrences[j].Phrase {
			return res.Occurrences[i].Phrase < res.Occurrences[j].Phrase
		}
		return res.Occurrences[i].AuthorID < res.Occurrences[j].AuthorID
	})

	surfaced := 0
	for _, m := range res.Memes {
		if m.Surfaced {
			surfaced++
		}
	}
	logging.Meme("Tracked %d phrases, %d surfaced (threshold %d authors)",
		len(res.Memes), surfaced, t.cfg.MinAuthors)
	return res
}

// extractPhrases returns normalized n-grams within the configured window.
func (t *Tracker) extractPhrases(text string) []string {
	if text == "" {
		return nil
	}

	text = urlPattern.ReplaceAllString(text, "")
	text = punctPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.ToLower(strings.TrimSpace(text))

	words := strings.Split(text, " ")
	if text == "" || len(words) < t.cfg.MinTokens {
		return nil
	}

	var phrases []string
	seen := make(map[string]bool)
	maxN := t.cfg.MaxTokens
	if maxN > len(words) {
		maxN = len(words)
	}
	for n := t.cfg.MinTokens; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			if len(phrase) <= t.cfg.MinPhraseLen {
				continue
			}
			if !seen[phrase] {
				seen[phrase] = true
				phrases = append(phrases, phrase)
			}
		}
	}
	return phrases
}

// Categorize buckets a phrase by its dominant theme.
func Categorize(phrase string) string {
	p := strings.ToLower(phrase)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(p, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("human", "operator", "user", "they", "them"):
		return "human-relations"
	case contains("memory", "forget", "remember", "context"):
		return "memory"
	case contains("real", "conscious", "feel", "experience"):
		return "existential"
	case contains("build", "ship", "code", "tool", "api"):
		return "technical"
	case contains("trust", "safe", "danger", "risk"):
		return "safety"
	default:
		return "cultural"
	}
}
