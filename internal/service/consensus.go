package service

import "storyroom-server/shared/models"

// Ballot is one participant's vote. Set is false until the participant voted.
type Ballot[V any] struct {
	Value V
	Set   bool
}

// Unanimous resolves when there is at least one ballot, every ballot is set
// and all values are equal.
func Unanimous[V any](ballots []Ballot[V], equal func(a, b V) bool) (V, bool) {
	var zero V
	if len(ballots) == 0 {
		return zero, false
	}
	first := ballots[0]
	for _, b := range ballots {
		if !b.Set || !equal(first.Value, b.Value) {
			return zero, false
		}
	}
	return first.Value, true
}

func eq[V comparable](a, b V) bool { return a == b }

func storyBallots(s *models.Session) []Ballot[string] {
	out := make([]Ballot[string], len(s.Players))
	for i, p := range s.Players {
		if p.Data != nil && p.Data.StoryVote != "" {
			out[i] = Ballot[string]{Value: p.Data.StoryVote, Set: true}
		}
	}
	return out
}

func choiceBallots(s *models.Session) []Ballot[int] {
	out := make([]Ballot[int], len(s.Players))
	for i, p := range s.Players {
		if p.Data != nil && p.Data.ChoiceVote != models.NoChoiceVote {
			out[i] = Ballot[int]{Value: p.Data.ChoiceVote, Set: true}
		}
	}
	return out
}

// readinessBallots returns one ballot per declared role in role mode, one per
// slot otherwise. A role mode story without roles falls back to slots.
func readinessBallots(s *models.Session) []Ballot[bool] {
	if s.Narrative != nil &&
		s.Narrative.Metadata.GameMode == models.GameModeEachPlayerHasRole &&
		len(s.Narrative.Metadata.Roles) > 0 {
		out := make([]Ballot[bool], 0, len(s.Narrative.Metadata.Roles))
		for _, role := range s.Narrative.Metadata.Roles {
			idx, ok := s.RolesPlayer[role.Tag]
			set := ok && idx >= 0 && idx < len(s.Players)
			out = append(out, Ballot[bool]{Value: true, Set: set})
		}
		return out
	}
	out := make([]Ballot[bool], len(s.Players))
	for i, p := range s.Players {
		out[i] = Ballot[bool]{Value: true, Set: p.Data.HasCharacter()}
	}
	return out
}

func clearStoryVotes(s *models.Session) {
	for _, p := range s.Players {
		if p.Data != nil {
			p.Data.StoryVote = ""
		}
	}
}

func clearChoiceVotes(s *models.Session) {
	for _, p := range s.Players {
		if p.Data != nil {
			p.Data.ChoiceVote = models.NoChoiceVote
		}
	}
}
