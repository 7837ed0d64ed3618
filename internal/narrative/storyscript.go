package narrative

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// StoryScriptEngineID tags states produced by StoryScript.
const StoryScriptEngineID = "storyscript/v1"

var (
	ErrCannotContinue   = errors.New("story cannot continue")
	ErrChoiceOutOfRange = errors.New("choice index out of range")
)

var interpolation = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// StoryScript is the JSON story engine.
type StoryScript struct{}

func NewStoryScript() *StoryScript { return &StoryScript{} }

func (e *StoryScript) ID() string { return StoryScriptEngineID }

// Compile parses a story document and checks every expression it carries.
func (e *StoryScript) Compile(source []byte) (Story, error) {
	doc, err := parseDocument(source)
	if err != nil {
		return nil, err
	}
	for name, k := range doc.Knots {
		for _, l := range k.Lines {
			if l.When != "" {
				if err := checkSyntax(conditionChunk(l.When)); err != nil {
					return nil, fmt.Errorf("%w: knot %q: %v", ErrInvalidStory, name, err)
				}
			}
		}
		for _, c := range k.Choices {
			if c.When != "" {
				if err := checkSyntax(conditionChunk(c.When)); err != nil {
					return nil, fmt.Errorf("%w: knot %q: %v", ErrInvalidStory, name, err)
				}
			}
			if c.Do != "" {
				if err := checkSyntax(c.Do); err != nil {
					return nil, fmt.Errorf("%w: knot %q: %v", ErrInvalidStory, name, err)
				}
			}
		}
	}

	vars := make(map[string]interface{}, len(doc.Variables))
	for k, v := range doc.Variables {
		vars[k] = v
	}
	s := &storyRun{doc: doc, state: runState{Variables: vars, Visits: map[string]int{}}}
	s.enter(doc.Start)
	return s, nil
}

type runState struct {
	Knot      string                 `json:"knot"`
	Line      int                    `json:"line"`
	Variables map[string]interface{} `json:"variables"`
	Visits    map[string]int         `json:"visits"`
	Ended     bool                   `json:"ended"`
	Tags      []string               `json:"tags,omitempty"`
}

type storyRun struct {
	doc   *document
	state runState
	err   error
}

func (s *storyRun) GlobalTags() []string { return s.doc.Tags }

func (s *storyRun) Err() error { return s.err }

func (s *storyRun) LoadState(state []byte) error {
	var st runState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("failed to decode story state: %w", err)
	}
	if _, ok := s.doc.Knots[st.Knot]; !ok {
		return fmt.Errorf("%w: state points at unknown knot %q", ErrInvalidStory, st.Knot)
	}
	if st.Variables == nil {
		st.Variables = map[string]interface{}{}
	}
	if st.Visits == nil {
		st.Visits = map[string]int{}
	}
	s.state = st
	s.err = nil
	return nil
}

func (s *storyRun) SaveState() ([]byte, error) {
	return json.Marshal(s.state)
}

func (s *storyRun) SetVariable(name string, value interface{}) error {
	if name == "" {
		return errors.New("variable name is empty")
	}
	s.state.Variables[name] = value
	return nil
}

func (s *storyRun) CurrentTags() []string { return s.state.Tags }

func (s *storyRun) enter(name string) {
	s.state.Knot = name
	s.state.Line = 0
	s.state.Visits[name]++
}

// seek moves the cursor to the next line that passes its condition, diverting
// through knots without choices. It reports whether a line is available.
func (s *storyRun) seek() bool {
	if s.err != nil {
		return false
	}
	for hops := 0; !s.state.Ended; hops++ {
		if hops > len(s.doc.Knots) {
			s.err = fmt.Errorf("%w: divert loop at knot %q", ErrInvalidStory, s.state.Knot)
			return false
		}
		k := s.doc.Knots[s.state.Knot]
		for s.state.Line < len(k.Lines) {
			ok, err := evalCondition(k.Lines[s.state.Line].When, s.state.Variables)
			if err != nil {
				s.err = err
				return false
			}
			if ok {
				return true
			}
			s.state.Line++
		}
		if len(s.visibleChoices()) > 0 || s.err != nil {
			return false
		}
		if k.Goto == "" {
			s.state.Ended = true
			return false
		}
		s.enter(k.Goto)
	}
	return false
}

func (s *storyRun) CanContinue() bool { return s.seek() }

func (s *storyRun) Continue() (string, error) {
	if !s.seek() {
		if s.err != nil {
			return "", s.err
		}
		return "", ErrCannotContinue
	}
	l := s.doc.Knots[s.state.Knot].Lines[s.state.Line]
	s.state.Line++
	s.state.Tags = l.Tags
	return s.interpolate(l.Text), nil
}

func (s *storyRun) visibleChoices() []choiceBlock {
	k := s.doc.Knots[s.state.Knot]
	if s.state.Ended || s.state.Line < len(k.Lines) {
		return nil
	}
	var out []choiceBlock
	for _, c := range k.Choices {
		ok, err := evalCondition(c.When, s.state.Variables)
		if err != nil {
			s.err = err
			return nil
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *storyRun) CurrentChoices() []Choice {
	visible := s.visibleChoices()
	out := make([]Choice, len(visible))
	for i, v := range visible {
		out[i] = Choice{Text: s.interpolate(v.Text), Tags: v.Tags, Index: i}
	}
	return out
}

func (s *storyRun) ChooseChoiceIndex(index int) error {
	visible := s.visibleChoices()
	if s.err != nil {
		return s.err
	}
	if index < 0 || index >= len(visible) {
		return fmt.Errorf("%w: %d of %d", ErrChoiceOutOfRange, index, len(visible))
	}
	chosen := visible[index]
	vars, err := execEffect(chosen.Do, s.state.Variables)
	if err != nil {
		s.err = err
		return err
	}
	s.state.Variables = vars
	s.state.Tags = nil
	s.enter(chosen.Goto)
	return nil
}

func (s *storyRun) interpolate(text string) string {
	return interpolation.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := s.state.Variables[name]
		if !ok {
			return m
		}
		return formatValue(v)
	})
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
