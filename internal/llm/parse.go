package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedResponse is returned when a response does not match the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

type parsedResponse struct {
	ids        []int64
	totalMarks int // 0 when absent or not numeric
}

// parseResponse validates a {"questions": [...], "totalMarks": n} payload.
// Only the question ids are kept; everything else is taken from the pool.
func parseResponse(raw string) (*parsedResponse, error) {
	raw = stripCodeFence(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	rawQuestions, ok := top["questions"]
	if !ok {
		return nil, fmt.Errorf("%w: missing questions", ErrMalformedResponse)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawQuestions, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: questions is not an array", ErrMalformedResponse)
	}

	resp := &parsedResponse{}
	for _, item := range items {
		var q struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(item, &q); err != nil {
			continue
		}
		id, err := q.ID.Int64()
		if err != nil {
			continue
		}
		resp.ids = append(resp.ids, id)
	}

	if rawTotal, ok := top["totalMarks"]; ok {
		var total float64
		if err := json.Unmarshal(rawTotal, &total); err == nil && total > 0 {
			resp.totalMarks = int(math.Round(total))
		}
	}
	return resp, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence some models add
// even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
