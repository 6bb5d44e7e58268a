// Package council runs candidate reports past a fixed panel of reviewer
// roles and synthesizes their verdicts into one publication decision.
package council

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"observatory/internal/logging"
	"observatory/internal/reasoning"
)

// Vote is one reviewer's verdict. Fallback marks votes synthesized locally
// because the reviewer's output failed validation; those always fail.
type Vote struct {
	Role           Role
	Approve        bool
	Reasoning      string
	MustFix        []string
	ShouldFix      []string
	Optional       []string
	Recommendation string
	Fallback       bool
}

// Decision is the synthesized council outcome.
type Decision struct {
	Approved         bool
	AutoApproved     bool
	NeedsHumanReview bool
	Reason           string
	Votes            []Vote
	MustFix          []string
	ShouldFix        []string
	Optional         []string
}

// Council queries each reviewer seat with identical candidate input.
type Council struct {
	client       reasoning.Client
	preScreening bool
}

// New creates a council over the given completion client.
func New(client reasoning.Client, preScreening bool) *Council {
	return &Council{client: client, preScreening: preScreening}
}

const votePromptFormat = `Review this finding for publication:

TOPIC: %s

CONTENT:
%s

Provide your assessment as JSON:
{
    "approve": true/false,
    "reasoning": "Your analysis (2-3 sentences)",
    "must_fix": ["blocking problems"],
    "should_fix": ["important improvements"],
    "optional": ["nice to have"],
    "recommendation": "publish" or "revise" or "reject"
}

Be concise. Focus on your role's perspective.`

// Deliberate reviews a candidate report. With pre-screening enabled, routine
// metric findings are approved without any reviewer calls. A client error
// aborts the deliberation; an unparseable reviewer verdict instead becomes a
// conservative failing vote, so a malfunctioning reviewer can block but
// never approve.
func (c *Council) Deliberate(ctx context.Context, topic, content string) (*Decision, error) {
	if c.preScreening {
		if s := Screen(topic, content); !s.NeedsCouncil {
			logging.Council("Pre-screening approved %q: %s", topic, s.Reason)
			return &Decision{Approved: true, AutoApproved: true, Reason: s.Reason}, nil
		}
	}

	prompt := fmt.Sprintf(votePromptFormat, topic, content)

	votes := make([]Vote, 0, len(reviewOrder))
	for _, role := range reviewOrder {
		raw, err := c.client.CompleteWithSystem(ctx, rolePrompts[role], prompt)
		if err != nil {
			return nil, fmt.Errorf("%s deliberation failed: %w", role, err)
		}
		vote, ok := parseVote(role, raw)
		if !ok {
			logging.CouncilWarn("Unparseable verdict from %s, recording failing fallback vote", role)
		}
		logging.Council("%s votes %s", role, verdictWord(vote.Approve))
		votes = append(votes, vote)
	}

	d := synthesize(votes)
	logging.Council("Deliberation on %q: %s (%s)", topic, verdictWord(d.Approved), d.Reason)
	return d, nil
}

type votePayload struct {
	Approve        *bool    `json:"approve"`
	Reasoning      string   `json:"reasoning"`
	MustFix        []string `json:"must_fix"`
	ShouldFix      []string `json:"should_fix"`
	Optional       []string `json:"optional"`
	Recommendation string   `json:"recommendation"`
}

// parseVote extracts the verdict JSON from a reviewer response. Anything
// that fails validation, including a missing approve field, yields the
// conservative fallback vote. Never a partial parse.
func parseVote(role Role, raw string) (Vote, bool) {
	fallback := Vote{
		Role:      role,
		Approve:   false,
		Reasoning: "verdict could not be validated; manual review recommended",
		MustFix:   []string{"reviewer response failed validation"},
		Fallback:  true,
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fallback, false
	}

	var p votePayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &p); err != nil {
		return fallback, false
	}
	if p.Approve == nil {
		return fallback, false
	}

	return Vote{
		Role:           role,
		Approve:        *p.Approve,
		Reasoning:      p.Reasoning,
		MustFix:        p.MustFix,
		ShouldFix:      p.ShouldFix,
		Optional:       p.Optional,
		Recommendation: p.Recommendation,
	}, true
}

// synthesize folds the five votes into one decision. Any must-fix item
// blocks. The guardian's rejection is a veto regardless of the tally;
// otherwise a majority approves. Items claimed by several reviewers in
// different buckets land in the bucket named by the highest-precedence
// reviewer.
func synthesize(votes []Vote) *Decision {
	d := &Decision{Votes: votes}

	approvals := 0
	var guardianRejects bool
	for _, v := range votes {
		if v.Approve {
			approvals++
		} else if v.Role == RoleGuardian {
			guardianRejects = true
		}
		if v.Fallback {
			d.NeedsHumanReview = true
		}
	}

	// Precedence order is the review order; earlier claims win.
	claimed := make(map[string]bool)
	claim := func(dst *[]string, items []string) {
		for _, item := range items {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" || claimed[key] {
				continue
			}
			claimed[key] = true
			*dst = append(*dst, item)
		}
	}
	for _, v := range votes {
		claim(&d.MustFix, v.MustFix)
		claim(&d.ShouldFix, v.ShouldFix)
		claim(&d.Optional, v.Optional)
	}

	switch {
	case d.NeedsHumanReview:
		d.Reason = "reviewer output failed validation"
	case guardianRejects:
		d.Reason = "guardian veto"
	case len(d.MustFix) > 0:
		d.Reason = fmt.Sprintf("%d blocking items", len(d.MustFix))
	case approvals*2 > len(votes):
		d.Approved = true
		d.Reason = fmt.Sprintf("approved %d of %d", approvals, len(votes))
	default:
		d.Reason = fmt.Sprintf("approved only %d of %d", approvals, len(votes))
	}
	return d
}

func verdictWord(approve bool) string {
	if approve {
		return "approve"
	}
	return "reject"
}
