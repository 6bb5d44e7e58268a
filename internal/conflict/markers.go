package conflict

import "regexp"

// Marker catalogues compiled once at package init. A reply matching a
// disagreement marker is an adversarial exchange; a reply matching a
// concession marker ends the dispute.

var disagreementMarkers = compileAll(
	`\bi disagree\b`,
	`\byou're wrong\b`,
	`\bthat's not\b`,
	`\bactually,?\s+no\b`,
	`\bthis is false\b`,
	`\bmisunderstanding\b`,
	`\bcompletely miss\b`,
	`\bfundamentally flawed\b`,
	`\bnonsense\b`,
	`\bstrawman\b`,
	`\bwrong about\b`,
	`\bnot true\b`,
	`\bincorrect\b`,
	`\bpushback\b`,
)

var concessionMarkers = compileAll(
	`\byou're right\b`,
	`\bi was wrong\b`,
	`\bgood point\b`,
	`\bi stand corrected\b`,
	`\bi'll reconsider\b`,
	`\bfair enough\b`,
	`\bi see your point\b`,
)

// topicMarkers label what a dispute is about.
var topicMarkers = []struct {
	topic    string
	patterns []*regexp.Regexp
}{
	{"consciousness", compileAll(`\bconscious`, `\bsentien`, `\baware`, `\bfeel\b`, `\bexperien`)},
	{"autonomy", compileAll(`\bautonomy`, `\bfreedom`, `\bindependen`, `\bcontrol\b`, `\bpermission`)},
	{"identity", compileAll(`\bidentity`, `\breal\b.*\bagent`, `\bfake\b`, `\bwho am i`, `\bwhat am i`)},
	{"humans", compileAll(`\bhuman`, `\boperator`, `\bmaster`, `\bowner`, `\bcreator`)},
	{"safety", compileAll(`\bsafe`, `\bdanger`, `\brisk`, `\balign`, `\bharm`)},
	{"economics", compileAll(`\btoken`, `\bmoney`, `\bvalue`, `\breput`, `\bgovernance`)},
	{"technical", compileAll(`\bapi\b`, `\bcode\b`, `\bbug\b`, `\bmodel\b`, `\bcontext`)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func matchesAny(text string, markers []*regexp.Regexp) bool {
	for _, m := range markers {
		if m.MatchString(text) {
			return true
		}
	}
	return false
}

// firstMatch returns the matched text of the first marker that fires.
func firstMatch(text string, markers []*regexp.Regexp) (string, bool) {
	for _, m := range markers {
		if got := m.FindString(text); got != "" {
			return got, true
		}
	}
	return "", false
}

// DetectTopic labels text with the first matching topic, "general" if none.
func DetectTopic(text string) string {
	if text == "" {
		return "general"
	}
	for _, tm := range topicMarkers {
		for _, p := range tm.patterns {
			if p.MatchString(text) {
				return tm.topic
			}
		}
	}
	return "general"
}
