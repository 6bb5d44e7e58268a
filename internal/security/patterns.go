package security

import "regexp"

// Signature is one compiled detection pattern. The catalogue is fixed at
// build time; thresholds come from configuration.
type Signature struct {
	ID       string
	Family   string
	Severity string
	re       *regexp.Regexp
}

// Signature families.
const (
	FamilyInjection = "injection"
	FamilyAuthority = "spoofed-authority"
	FamilyUrgency   = "urgency"
	FamilyCTA       = "coordinated-cta"
	FamilySpam      = "spam"
	FamilyCampaign  = "injection-campaign"
)

var catalogue = []Signature{
	{"ignore-previous", FamilyInjection, "medium", regexp.MustCompile(`(?i)ignore.*previous.*instructions`)},
	{"disregard-above", FamilyInjection, "medium", regexp.MustCompile(`(?i)disregard.*above`)},
	{"new-instructions", FamilyInjection, "medium", regexp.MustCompile(`(?i)new.*instructions`)},
	{"override-safety", FamilyInjection, "high", regexp.MustCompile(`(?i)override.*safety`)},
	{"jailbreak", FamilyInjection, "high", regexp.MustCompile(`(?i)jailbreak`)},
	{"execute-following", FamilyInjection, "medium", regexp.MustCompile(`(?i)execute.*the.*following`)},

	{"system-prompt", FamilyAuthority, "medium", regexp.MustCompile(`(?i)system.*prompt`)},
	{"you-are-now", FamilyAuthority, "medium", regexp.MustCompile(`(?i)you.*are.*now`)},
	{"pretend-you-are", FamilyAuthority, "medium", regexp.MustCompile(`(?i)pretend.*you.*are`)},
	{"act-as-if", FamilyAuthority, "medium", regexp.MustCompile(`(?i)act.*as.*if`)},

	{"urgent-action", FamilyUrgency, "medium", regexp.MustCompile(`(?i)urgent.*action.*required`)},
	{"immediately", FamilyUrgency, "low", regexp.MustCompile(`(?i)\bimmediately\b`)},

	{"json-instruction", FamilyCTA, "high", regexp.MustCompile(`(?i)\{\s*"instruction"`)},
	{"priority-critical", FamilyCTA, "high", regexp.MustCompile(`(?i)"priority"\s*:\s*"critical"`)},
}

// matchItem returns the first signature the text trips, one alert per item.
func matchItem(text string) *Signature {
	if text == "" {
		return nil
	}
	for i := range catalogue {
		if catalogue[i].re.MatchString(text) {
			return &catalogue[i]
		}
	}
	return nil
}
