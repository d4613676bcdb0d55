// Package scoring computes how well a team's combined skills cover the skills
// a project requires.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// MemberSkills is one team member's declared skills.
type MemberSkills struct {
	UserID uuid.UUID
	Skills []string
}

// MemberMatch is a member's contribution to the team score.
type MemberMatch struct {
	UserID          uuid.UUID `json:"user_id"`
	IndividualScore int       `json:"individual_score"`
	MatchedSkills   []string  `json:"matched_skills"`
}

// Result is the coverage of the required skills by the whole team.
type Result struct {
	TeamScore     float64       `json:"team_score"`
	MatchedSkills []string      `json:"matched_skills"`
	Members       []MemberMatch `json:"members"`
}

// Score returns the percentage (two decimals) of required skills covered by
// the union of the members' skills. Matching is case-insensitive and ignores
// surrounding whitespace. An empty required list scores 0.
func Score(members []MemberSkills, required []string) Result {
	requiredSet := normalize(required)

	teamMatched := make(map[string]struct{})
	matches := make([]MemberMatch, 0, len(members))

	for _, member := range members {
		matched := make([]string, 0)
		for skill := range normalize(member.Skills) {
			if _, ok := requiredSet[skill]; ok {
				matched = append(matched, skill)
				teamMatched[skill] = struct{}{}
			}
		}
		sort.Strings(matched)

		matches = append(matches, MemberMatch{
			UserID:          member.UserID,
			IndividualScore: len(matched),
			MatchedSkills:   matched,
		})
	}

	var teamScore float64
	if len(requiredSet) > 0 {
		teamScore = round2(float64(len(teamMatched)) / float64(len(requiredSet)) * 100)
	}

	return Result{
		TeamScore:     teamScore,
		MatchedSkills: sortedKeys(teamMatched),
		Members:       matches,
	}
}

func normalize(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		s := strings.ToLower(strings.TrimSpace(skill))
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
