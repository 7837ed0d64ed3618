package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AppendEvictsOldest(t *testing.T) {
	var tr Transcript
	for i := 0; i < 20; i++ {
		tr = tr.Append(Line{Text: fmt.Sprintf("line %d", i)})
		assert.LessOrEqual(t, len(tr), TranscriptLimit)
	}
	require.Len(t, tr, TranscriptLimit)
	assert.Equal(t, "line 5", tr[0].Text)
	assert.Equal(t, "line 19", tr[len(tr)-1].Text)

	tr = tr.Append(Line{Text: "a"}, Line{Text: "b"})
	assert.Equal(t, "line 7", tr[0].Text)
	assert.Equal(t, "b", tr[len(tr)-1].Text)
}

func TestTranscript_AppendDoesNotAliasInput(t *testing.T) {
	base := make(Transcript, 0, 20)
	base = base.Append(Line{Text: "x"})
	a := base.Append(Line{Text: "a"})
	b := base.Append(Line{Text: "b"})
	assert.Equal(t, "a", a[1].Text)
	assert.Equal(t, "b", b[1].Text)
}

func TestSession_Slots(t *testing.T) {
	s := &Session{ID: "s1", Players: []PlayerSlot{
		{ConnectionID: "c1", UserID: "u1"},
		{ConnectionID: "", UserID: "u2"},
		{ConnectionID: "c3", UserID: "u3"},
	}}

	idx, err := s.SlotByConnection("c3")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = s.SlotByConnection("")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.SlotByConnection("nope")
	assert.ErrorIs(t, err, ErrForbidden)

	idx, ok := s.SlotByUser("u2")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	assert.Equal(t, []string{"c1", "c3"}, s.ConnectionIDs(""))
	assert.Equal(t, []string{"c3"}, s.ConnectionIDs("c1"))
}

func TestSession_ViewHidesEngineState(t *testing.T) {
	s := &Session{
		ID:      "s1",
		Players: []PlayerSlot{{UserID: "u1"}},
		Narrative: &NarrativeState{
			StoryID: "story",
			Engine:  EngineState{Engine: "storyscript/v1", Data: json.RawMessage(`{"secret":true}`)},
			Choices: []Choice{{Text: "go", Index: 0}},
		},
	}
	data, err := json.Marshal(s.View())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"choices":[{"text":"go","tags":null,"index":0}]`)
}

func TestPlayerSlot_Label(t *testing.T) {
	assert.Equal(t, "alice", PlayerSlot{Username: "alice"}.Label())
	assert.Equal(t, "alice (Papa)", PlayerSlot{Username: "alice", Data: &PlayerData{CharacterName: "Papa"}}.Label())
}

func TestNewPlayerData_StartsWithoutVotes(t *testing.T) {
	d := NewPlayerData()
	assert.Equal(t, NoChoiceVote, d.ChoiceVote)
	assert.Empty(t, d.StoryVote)
	assert.False(t, d.HasCharacter())
}
