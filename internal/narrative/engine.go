// Package narrative runs compiled branching stories.
//
// A story is a JSON document of knots. Each knot narrates lines and then
// either exposes choices (a decision point), diverts to another knot or ends
// the story. Conditions and effects are Lua expressions evaluated against the
// story variables. The engine state is plain JSON so it can be stored on a
// session record and resumed on any instance.
package narrative

// Choice is an option visible at a decision point. Index is its position in
// the visible list, which is what ChooseChoiceIndex expects.
type Choice struct {
	Text  string
	Tags  []string
	Index int
}

// Engine compiles story sources into runnable stories.
type Engine interface {
	// ID tags serialized states so a state is never fed to another engine.
	ID() string
	Compile(source []byte) (Story, error)
}

// Story is a running instance of a compiled story.
type Story interface {
	GlobalTags() []string
	LoadState(state []byte) error
	SaveState() ([]byte, error)
	CanContinue() bool
	Continue() (string, error)
	CurrentTags() []string
	CurrentChoices() []Choice
	ChooseChoiceIndex(index int) error
	SetVariable(name string, value interface{}) error
	// Err reports the first evaluation failure met while stepping.
	Err() error
}
