package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/legalease/internal/models"
)

var errNoJSON = errors.New("no JSON object in response")

// ExtractJSON returns the outermost JSON object in s, ignoring markdown fences
// and any prose around it.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:] // language tag
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// ParsePayload decodes and validates a structured answer for t.
func ParsePayload(t models.AnalysisType, raw string) (models.Payload, error) {
	payload := models.NewPayload(t)
	if payload == nil {
		return nil, fmt.Errorf("analysis type %q has no payload", t)
	}
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(obj), payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", t, err)
	}
	return payload, nil
}

// chatAnswer returns the answer text of a chat reply. Models sometimes wrap
// the answer in a JSON object despite being asked for prose.
func chatAnswer(raw string) string {
	answer := strings.TrimSpace(raw)
	if obj, err := ExtractJSON(answer); err == nil && obj == answer {
		var wrapped struct {
			Answer string `json:"answer"`
		}
		if json.Unmarshal([]byte(obj), &wrapped) == nil && strings.TrimSpace(wrapped.Answer) != "" {
			return strings.TrimSpace(wrapped.Answer)
		}
	}
	return answer
}
