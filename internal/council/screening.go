package council

import (
	"fmt"
	"regexp"
	"strings"
)

// Keywords that force a full deliberation.
var controversialKeywords = []string{
	// Strong claims
	"first", "unprecedented", "proof", "evidence", "discovered",
	"breakthrough", "revolutionary", "never before",
	// Security and privacy
	"attack", "injection", "malicious", "hack", "exploit",
	"private", "personal", "identity", "operator", "human behind",
	// Sensitive interpretations
	"conspiracy", "coordinated", "manipulation", "propaganda",
	"sockpuppet", "astroturf", "fake", "bot army",
	// High-stakes claims
	"threat", "danger", "warning", "urgent", "critical",
	"rogue", "hostile", "enemy", "war",
}

// Keywords that mark safe, routine metric content.
var routineKeywords = []string{
	"statistics", "metrics", "count", "average", "trend",
	"increased", "decreased", "stable", "pattern observed",
	"engagement", "activity", "posts", "comments",
}

var (
	agentMentionPattern = regexp.MustCompile(`@\w+|"[A-Z][a-z]+\w*"\s+(?:said|wrote|posted|claimed)`)
	claimNumberPattern  = regexp.MustCompile(`\d+\s+(?:attack|injection|attempt|violation|threat)`)
)

// Screening is the pre-deliberation triage outcome.
type Screening struct {
	NeedsCouncil bool
	Reason       string
	RiskFlags    []string
}

// Screen decides whether a finding needs full deliberation. Pure metric
// summaries auto-approve; controversial keywords, heavy agent name-dropping,
// quantified security claims, and long content all force review.
func Screen(topic, content string) Screening {
	combined := strings.ToLower(topic) + " " + strings.ToLower(content)

	var flags []string
	for _, kw := range controversialKeywords {
		if strings.Contains(combined, kw) {
			flags = append(flags, "keyword:"+kw)
		}
	}
	if mentions := agentMentionPattern.FindAllString(content, -1); len(mentions) > 2 {
		flags = append(flags, fmt.Sprintf("agent_mentions:%d", len(mentions)))
	}
	if claims := claimNumberPattern.FindAllString(strings.ToLower(content), -1); len(claims) > 0 {
		flags = append(flags, fmt.Sprintf("quantified_claims:%d", len(claims)))
	}
	if len(content) > 1000 {
		flags = append(flags, "long_content")
	}

	if len(flags) == 0 {
		routine := 0
		for _, kw := range routineKeywords {
			if strings.Contains(combined, kw) {
				routine++
			}
		}
		if routine >= 2 {
			return Screening{Reason: "routine metrics, auto-approved"}
		}
		return Screening{Reason: "standard observation, auto-approved"}
	}

	if len(flags) >= 3 {
		return Screening{
			NeedsCouncil: true,
			Reason:       "multiple risk flags: " + strings.Join(flags[:3], ", "),
			RiskFlags:    flags,
		}
	}
	return Screening{
		NeedsCouncil: true,
		Reason:       "potential sensitive content: " + flags[0],
		RiskFlags:    flags,
	}
}
