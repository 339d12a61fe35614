package scoring

import "strings"

// Role is the part a section plays in the rating rules.
type Role string

const (
	RoleRedFlag        Role = "red_flag"
	RoleAccountability Role = "accountability"
	RoleDepth          Role = "depth"
	RoleAction         Role = "action"
)

// Roles maps each role to substrings matched case-insensitively against a section's id or title.
type Roles map[Role][]string

// DefaultRoles returns the matchers used when a questionnaire does not supply its own.
func DefaultRoles() Roles {
	return Roles{
		RoleRedFlag:        {"red flag", "red_flag", "redflag", "misaligned"},
		RoleAccountability: {"accountab"},
		RoleDepth:          {"depth", "planning"},
		RoleAction:         {"action", "implementation"},
	}
}

// Matches reports whether section s plays role.
func (r Roles) Matches(role Role, s SectionResult) bool {
	id := strings.ToLower(s.SectionID)
	title := strings.ToLower(s.SectionTitle)
	for _, pattern := range r[role] {
		p := strings.ToLower(pattern)
		if p == "" {
			continue
		}
		if strings.Contains(id, p) || strings.Contains(title, p) {
			return true
		}
	}
	return false
}

// Find returns the index of the first section playing role, or -1.
func (r Roles) Find(role Role, sections []SectionResult) int {
	for i, s := range sections {
		if r.Matches(role, s) {
			return i
		}
	}
	return -1
}
