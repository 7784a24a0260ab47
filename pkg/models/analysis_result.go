// Package models contains shared data models used across the ThreatLens codebase.
package models

import (
	"fmt"
	"time"
)

// DetectionType identifies which detection flow produced a result.
type DetectionType string

const (
	DetectionVoice    DetectionType = "voice"
	DetectionDeepfake DetectionType = "deepfake"
	DetectionPhishing DetectionType = "phishing"
)

// Valid reports whether t is one of the known detection flows.
func (t DetectionType) Valid() bool {
	switch t {
	case DetectionVoice, DetectionDeepfake, DetectionPhishing:
		return true
	}
	return false
}

// ParseDetectionType converts a raw string into a DetectionType.
func ParseDetectionType(s string) (DetectionType, error) {
	t := DetectionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown detection type %q: must be one of voice, deepfake, phishing", s)
	}
	return t, nil
}

// AnalysisResult is a single stored analysis. Created once per request, never mutated.
type AnalysisResult struct {
	ID          int64         `db:"id"           json:"id"`
	Type        DetectionType `db:"type"         json:"type"`
	FileName    *string       `db:"file_name"    json:"fileName,omitempty"`
	FileSize    *int64        `db:"file_size"    json:"fileSize,omitempty"`
	ContentText *string       `db:"content_text" json:"contentText,omitempty"`
	Score       int           `db:"score"        json:"score"`
	Status      ResultStatus  `db:"status"       json:"status"`
	Factors     []string      `db:"factors"      json:"factors"`
	Degraded    bool          `db:"degraded"     json:"degraded"`
	Scorer      string        `db:"scorer"       json:"scorer"`
	ArtifactKey *string       `db:"artifact_key" json:"artifactKey,omitempty"`
	CreatedAt   time.Time     `db:"created_at"   json:"createdAt"`
}

// Verdict returns the Result Contract portion of the stored result.
func (r *AnalysisResult) Verdict() Verdict {
	factors := make([]string, len(r.Factors))
	copy(factors, r.Factors)
	return Verdict{
		Score:    r.Score,
		Status:   r.Status,
		Factors:  factors,
		Degraded: r.Degraded,
	}
}

// Clone returns a deep copy of r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	c := *r
	if r.Factors != nil {
		c.Factors = make([]string, len(r.Factors))
		copy(c.Factors, r.Factors)
	}
	if r.FileName != nil {
		v := *r.FileName
		c.FileName = &v
	}
	if r.FileSize != nil {
		v := *r.FileSize
		c.FileSize = &v
	}
	if r.ContentText != nil {
		v := *r.ContentText
		c.ContentText = &v
	}
	if r.ArtifactKey != nil {
		v := *r.ArtifactKey
		c.ArtifactKey = &v
	}
	return &c
}
