package narrative

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidStory = errors.New("invalid story document")

type document struct {
	Tags      []string               `json:"tags"`
	Variables map[string]interface{} `json:"variables"`
	Start     string                 `json:"start"`
	Knots     map[string]*knot       `json:"knots"`
}

type knot struct {
	Lines   []line        `json:"lines"`
	Choices []choiceBlock `json:"choices"`
	Goto    string        `json:"goto"`
}

type line struct {
	Text string   `json:"text"`
	Tags []string `json:"tags"`
	When string   `json:"when"`
}

type choiceBlock struct {
	Text string   `json:"text"`
	Tags []string `json:"tags"`
	When string   `json:"when"`
	Do   string   `json:"do"`
	Goto string   `json:"goto"`
}

func parseDocument(source []byte) (*document, error) {
	var doc document
	if err := json.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}
	if len(doc.Knots) == 0 {
		return nil, fmt.Errorf("%w: no knots", ErrInvalidStory)
	}
	if doc.Start == "" {
		doc.Start = "start"
	}
	if _, ok := doc.Knots[doc.Start]; !ok {
		return nil, fmt.Errorf("%w: start knot %q not found", ErrInvalidStory, doc.Start)
	}
	for name, k := range doc.Knots {
		if k == nil {
			return nil, fmt.Errorf("%w: knot %q is empty", ErrInvalidStory, name)
		}
		if k.Goto != "" {
			if _, ok := doc.Knots[k.Goto]; !ok {
				return nil, fmt.Errorf("%w: knot %q diverts to unknown knot %q", ErrInvalidStory, name, k.Goto)
			}
		}
		for i, c := range k.Choices {
			if _, ok := doc.Knots[c.Goto]; !ok {
				return nil, fmt.Errorf("%w: choice %d of knot %q targets unknown knot %q", ErrInvalidStory, i, name, c.Goto)
			}
		}
	}
	if doc.Variables == nil {
		doc.Variables = map[string]interface{}{}
	}
	return &doc, nil
}
