package evaluation

import "regexp"

var (
	yesPattern          = regexp.MustCompile(`(?i)\byes\b`)
	noPattern           = regexp.MustCompile(`(?i)\bno\b`)
	insufficientPattern = regexp.MustCompile(`(?i)\bnot enough\b|\binsufficient\b|\bunknown\b|\bcannot determine\b|\bcan't determine\b|\bn/a\b`)
)

// NormalizeResponse maps free-text classifier output to a Response.
// "yes" wins, then insufficiency markers, then "no"; anything else is Insufficient.
// Matching is case-insensitive on whole words. Because insufficiency outranks
// "no", an answer such as "No, insufficient evidence" is Insufficient and never
// counts toward the red-flag rule, which only fires on No.
func NormalizeResponse(raw string) Response {
	switch {
	case yesPattern.MatchString(raw):
		return Yes
	case insufficientPattern.MatchString(raw):
		return Insufficient
	case noPattern.MatchString(raw):
		return No
	default:
		return Insufficient
	}
}
