package categorization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned for model output that is not the results document.
var ErrMalformedResponse = errors.New("categorization: malformed model response")

// Result is one classification proposed by the model, not yet validated.
type Result struct {
	Code  string
	CatID string
}

type resultsDocument struct {
	Results []struct {
		Code  string          `json:"code"`
		CatID json.RawMessage `json:"catId"`
	} `json:"results"`
}

// ParseResults decodes {"results":[{"code","catId"}]}. catId may arrive as a
// string or a number. A missing results key yields no results.
func ParseResults(text string) ([]Result, error) {
	text = stripCodeFence(text)

	var doc resultsDocument
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]Result, 0, len(doc.Results))
	for _, r := range doc.Results {
		id, err := catIDString(r.CatID)
		if err != nil {
			return nil, fmt.Errorf("%w: catId of %q: %v", ErrMalformedResponse, r.Code, err)
		}
		out = append(out, Result{Code: strings.TrimSpace(r.Code), CatID: id})
	}
	return out, nil
}

func catIDString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
