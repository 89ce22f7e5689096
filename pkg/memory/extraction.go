package memory

import (
	"encoding/json"
	"strings"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Extraction is the structured output of the memory-extractor agent turn.
type Extraction struct {
	Importance int                `json:"importance"`
	Summary    string             `json:"summary"`
	Events     []ExtractedEvent   `json:"events"`
	Entities   []ExtractedEntity  `json:"entities"`
	Relations  []ExtractedRelation `json:"relations"`
	Profile    []ProfileUpdate    `json:"profile"`
}

// ExtractedEvent is one role-tagged memory fragment.
type ExtractedEvent struct {
	Role       string   `json:"role"`
	Text       string   `json:"text"`
	Importance int      `json:"importance"`
	Keywords   []string `json:"keywords"`
}

// ExtractedEntity is a graph node mention.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractedRelation is a typed edge between two extracted entities,
// referenced by name.
type ExtractedRelation struct {
	Source string  `json:"source"`
	Label  string  `json:"label"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// ProfileUpdate is one key/value preference write.
type ProfileUpdate struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Importance int    `json:"importance"`
}

// ChunkSummary is the structured output of the summarizer agent turn.
type ChunkSummary struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Importance int    `json:"importance"`
}

// ParseExtraction decodes a memory-extractor reply. The grammar keeps the
// model inside JSON, but replies may still carry think spans or a fenced
// block around the object, so the first balanced JSON object is extracted
// before unmarshaling.
func ParseExtraction(raw string) (*Extraction, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return nil, fault.New(fault.KindInvalidInput, "no JSON object in extractor reply")
	}
	var ext Extraction
	if err := json.Unmarshal([]byte(obj), &ext); err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "decoding extractor reply")
	}
	if ext.Importance < 1 {
		ext.Importance = 1
	}
	if ext.Importance > 10 {
		ext.Importance = 10
	}
	return &ext, nil
}

// ParseChunkSummary decodes a summarizer reply.
func ParseChunkSummary(raw string) (*ChunkSummary, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return nil, fault.New(fault.KindInvalidInput, "no JSON object in summarizer reply")
	}
	var cs ChunkSummary
	if err := json.Unmarshal([]byte(obj), &cs); err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "decoding summarizer reply")
	}
	if cs.Summary == "" {
		return nil, fault.New(fault.KindInvalidInput, "summarizer reply has empty summary")
	}
	if cs.Importance < 1 {
		cs.Importance = 1
	}
	if cs.Importance > 10 {
		cs.Importance = 10
	}
	return &cs, nil
}

// StripThink removes <think>…</think> spans, keeping only content after
// the final closing tag when one exists. Implemented as a single pass over
// the text rather than regexp so unbalanced tags degrade gracefully.
func StripThink(text string) string {
	if idx := strings.LastIndex(text, "</think>"); idx >= 0 {
		return strings.TrimSpace(text[idx+len("</think>"):])
	}
	if idx := strings.Index(text, "<think>"); idx >= 0 {
		// Opened but never closed: everything after the tag is thought.
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

// firstJSONObject scans for the first balanced top-level JSON object,
// ignoring braces inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		b := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
