package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AnalysisType names one analysis stage.
type AnalysisType string

const (
	AnalysisSummary   AnalysisType = "summary"
	AnalysisClauses   AnalysisType = "clauses"
	AnalysisDates     AnalysisType = "dates"
	AnalysisRisks     AnalysisType = "risks"
	AnalysisEntities  AnalysisType = "entities"
	AnalysisBreakdown AnalysisType = "breakdown"
	AnalysisMindmap   AnalysisType = "mindmap"
	AnalysisChat      AnalysisType = "chat"
)

// StructuredAnalysisTypes lists every cacheable, schema-bound analysis type.
var StructuredAnalysisTypes = []AnalysisType{
	AnalysisSummary,
	AnalysisClauses,
	AnalysisDates,
	AnalysisRisks,
	AnalysisEntities,
	AnalysisBreakdown,
	AnalysisMindmap,
}

// ParseAnalysisType converts s to an AnalysisType. Matching is case-insensitive.
func ParseAnalysisType(s string) (AnalysisType, error) {
	t := AnalysisType(strings.ToLower(strings.TrimSpace(s)))
	if t == AnalysisChat {
		return t, nil
	}
	for _, known := range StructuredAnalysisTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

// Structured reports whether t produces a schema-bound JSON payload.
func (t AnalysisType) Structured() bool {
	return t != AnalysisChat
}

// AnalysisRequest asks for one analysis of one document.
type AnalysisRequest struct {
	DocumentID   string       `json:"document_id"`
	AnalysisType AnalysisType `json:"analysis_type"`
	Question     string       `json:"question,omitempty"`
}

// Validate checks that the request is complete.
func (r *AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.DocumentID) == "" {
		return fmt.Errorf("document_id cannot be empty")
	}
	if _, err := ParseAnalysisType(string(r.AnalysisType)); err != nil {
		return err
	}
	if r.AnalysisType == AnalysisChat && strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("question cannot be empty")
	}
	return nil
}

// DegradationBestEffort labels a result whose payload is the raw model answer.
const DegradationBestEffort = "best_effort"

// AnalysisResult is the output of one workflow run.
type AnalysisResult struct {
	AnalysisType      AnalysisType `json:"analysis_type"`
	DocumentID        string       `json:"document_id"`
	Timestamp         time.Time    `json:"timestamp"`
	ContextChunksUsed int          `json:"context_chunks_used"`
	Result            any          `json:"result"`
	Error             string       `json:"error,omitempty"`
	Degradation       string       `json:"degradation,omitempty"`
}

// Degraded reports whether the result carries a fallback payload.
func (r *AnalysisResult) Degraded() bool {
	return r.Degradation != "" || r.Error != ""
}

// DecodeAnalysisResult decodes a JSON-encoded AnalysisResult, typing Result by
// its analysis type. Degraded results decode to a FallbackPayload.
func DecodeAnalysisResult(data []byte) (*AnalysisResult, error) {
	var envelope struct {
		AnalysisResult
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	result := envelope.AnalysisResult
	var payload any
	switch {
	case result.Degraded() && result.AnalysisType.Structured():
		payload = &FallbackPayload{}
	case result.AnalysisType == AnalysisChat:
		payload = &ChatPayload{}
	default:
		if payload = NewPayload(result.AnalysisType); payload == nil {
			return nil, fmt.Errorf("decode analysis result: unknown analysis type %q", result.AnalysisType)
		}
	}
	if len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", result.AnalysisType, err)
		}
	}
	result.Result = payload
	return &result, nil
}
