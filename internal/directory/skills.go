package directory

import (
	"fmt"
	"sort"
	"strings"
)

// Selection is the outcome of matching a capability against the advertised
// skills: which agent to send the task to and which skill it invokes.
type Selection struct {
	AgentID string
	SkillID string
}

// Match scores tiers. An exact skill-ID hit always beats name-token overlap,
// which beats description-token overlap.
const (
	scoreExactID     = 3
	scoreNameToken   = 2
	scoreDescription = 1
)

type candidate struct {
	Selection
	score int
}

// Select finds the single agent able to serve capability. Zero matches is
// ErrNoCapableAgent; two or more agents tied at the best score is
// ErrAmbiguousCapability. Several skills on the same agent collapse to that
// agent's best-scoring skill before the tie is judged.
func (d *Directory) Select(capability string) (Selection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	capTokens := tokenize(capability)
	best := make(map[string]candidate)

	for _, entry := range d.entries {
		if entry.Card == nil {
			continue
		}
		for _, skill := range entry.Card.Skills {
			score := scoreSkill(capability, capTokens, skill.ID, skill.Name, skill.Description)
			if score == 0 {
				continue
			}
			cur, ok := best[entry.AgentID]
			if !ok || score > cur.score {
				best[entry.AgentID] = candidate{
					Selection: Selection{AgentID: entry.AgentID, SkillID: skill.ID},
					score:     score,
				}
			}
		}
	}

	if len(best) == 0 {
		return Selection{}, fmt.Errorf("%w: %s", ErrNoCapableAgent, capability)
	}

	ranked := make([]candidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})

	if len(ranked) > 1 && ranked[0].score == ranked[1].score {
		return Selection{}, fmt.Errorf("%w: %s matches %s and %s",
			ErrAmbiguousCapability, capability, ranked[0].AgentID, ranked[1].AgentID)
	}
	return ranked[0].Selection, nil
}

func scoreSkill(capability string, capTokens []string, id, name, description string) int {
	if strings.EqualFold(capability, id) {
		return scoreExactID
	}
	if overlaps(capTokens, tokenize(name)) {
		return scoreNameToken
	}
	if overlaps(capTokens, tokenize(description)) {
		return scoreDescription
	}
	return 0
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == ',' || r == '.'
	})
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	for _, t := range a {
		if set[t] {
			return true
		}
	}
	return false
}
