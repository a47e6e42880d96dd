// Package model defines the element and knowledge data types.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Fingerprint is the stable cache key derived from an element's canonical fields.
type Fingerprint string

// Rect is an element bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width*height, or 0 for degenerate boxes.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Contains reports whether o lies inside r, allowing tol pixels of slack on every edge.
func (r Rect) Contains(o Rect, tol float64) bool {
	return o.X >= r.X-tol &&
		o.Y >= r.Y-tol &&
		o.X+o.Width <= r.X+r.Width+tol &&
		o.Y+o.Height <= r.Y+r.Height+tol
}

// NodeSummary is a short description of a related element.
type NodeSummary struct {
	Tag      string `json:"tag"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
}

// StructuralContext describes an element's neighbours. It is handed to the
// classifier as-is and never used for fingerprinting.
type StructuralContext struct {
	Parent   *NodeSummary  `json:"parent,omitempty"`
	Siblings []NodeSummary `json:"siblings,omitempty"`
	Children []NodeSummary `json:"children,omitempty"`
}

// ElementDescriptor is the transient description of one rendered element.
type ElementDescriptor struct {
	Tag       string             `json:"tag"`
	ID        string             `json:"id"`
	Classes   string             `json:"class"`
	Text      string             `json:"text"`
	Rect      Rect               `json:"rect"`
	Href      string             `json:"href,omitempty"`
	Clickable bool               `json:"clickable,omitempty"`
	Context   *StructuralContext `json:"context,omitempty"`
}

// Classification is the classifier's raw output. Only understanding, purpose
// and confidence are interpreted; everything else is kept verbatim.
type Classification map[string]any

// Understanding returns the "understanding" field, if it is a string.
func (c Classification) Understanding() (string, bool) {
	s, ok := c["understanding"].(string)
	return s, ok
}

// Purpose returns the "purpose" field or "".
func (c Classification) Purpose() string {
	s, _ := c["purpose"].(string)
	return s
}

// Confidence returns the "confidence" field clamped to [0,1]. Missing or
// non-numeric values yield 0.
func (c Classification) Confidence() float64 {
	var f float64
	switch v := c["confidence"].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		f, _ = v.Float64()
	}
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ElementKnowledge is the persisted result of classifying one element.
type ElementKnowledge struct {
	URL           string         `json:"url"`
	Selector      string         `json:"selector"`
	ElementHash   Fingerprint    `json:"element_hash"`
	Understanding string         `json:"understanding"`
	Purpose       string         `json:"purpose"`
	Confidence    float64        `json:"confidence"`
	Timestamp     Timestamp      `json:"timestamp"`
	LLMResponse   Classification `json:"llm_response"`
}

// SiteKnowledgeMap maps fingerprints to knowledge for one site identity.
type SiteKnowledgeMap map[Fingerprint]*ElementKnowledge

// Clone returns a deep copy of m. Nil entries are dropped.
func (m SiteKnowledgeMap) Clone() SiteKnowledgeMap {
	out := make(SiteKnowledgeMap, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = v.Clone()
	}
	return out
}

// Clone returns a copy of k that shares no payload with it.
func (k *ElementKnowledge) Clone() *ElementKnowledge {
	if k == nil {
		return nil
	}
	cp := *k
	cp.LLMResponse = k.LLMResponse.Clone()
	return &cp
}

// Clone returns a deep copy of the payload. Nested maps and slices decoded
// from JSON are copied too.
func (c Classification) Clone() Classification {
	if c == nil {
		return nil
	}
	out := make(Classification, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Classification:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Stats are the run-scoped resolution counters.
type Stats struct {
	CacheHits int64 `json:"cache_hits"`
	LLMCalls  int64 `json:"llm_calls"`
}

// Confidence thresholds.
const (
	ConfidenceHigh   = 0.8
	ConfidenceMedium = 0.5
)

// ConfidenceLevel buckets a confidence value into high, medium or low.
func ConfidenceLevel(c float64) string {
	switch {
	case c >= ConfidenceHigh:
		return "high"
	case c >= ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// legacyLayouts are timestamp layouts accepted in addition to RFC 3339.
// Older site files were written with naive ISO timestamps.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a time.Time that tolerates naive ISO-8601 values on decode.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a UTC Timestamp.
func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	for _, layout := range legacyLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}
