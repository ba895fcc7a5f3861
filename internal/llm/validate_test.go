package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

var verdictSchema = &Schema{
	Name: "test-verdict",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"feedback":   map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "string", "enum": []any{"low", "high"}},
			"criteria": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": map[string]any{"id": map[string]any{"type": "string"}, "points": map[string]any{"type": "integer"}},
					"required":   []any{"id", "points"},
				},
			},
		},
		"required": []any{"score", "feedback"},
	},
}

func TestCheckContent(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		content string
		wantErr bool
	}{
		{"complete", verdictSchema, `{"score":0.5,"feedback":"ok","confidence":"high"}`, false},
		{"optional fields omitted", verdictSchema, `{"score":1,"feedback":"ok"}`, false},
		{"nested items", verdictSchema, `{"score":1,"feedback":"ok","criteria":[{"id":"a","points":2}]}`, false},
		{"missing feedback", verdictSchema, `{"score":1}`, true},
		{"score above range", verdictSchema, `{"score":1.5,"feedback":"ok"}`, true},
		{"score as string", verdictSchema, `{"score":"1","feedback":"ok"}`, true},
		{"enum violation", verdictSchema, `{"score":1,"feedback":"ok","confidence":"maybe"}`, true},
		{"bad nested item", verdictSchema, `{"score":1,"feedback":"ok","criteria":[{"id":"a","points":"two"}]}`, true},
		{"not JSON", verdictSchema, `{score: 1}`, true},
		{"empty", verdictSchema, ``, true},
		{"nil schema accepts anything", nil, `whatever`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkContent(tt.schema, json.RawMessage(tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkContent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var inv *ErrInvalidResponse
			if !errors.As(err, &inv) {
				t.Fatalf("error type = %T, want *ErrInvalidResponse", err)
			}
			if string(inv.Content) != tt.content {
				t.Errorf("error content = %q, want the raw output", inv.Content)
			}
		})
	}
}

func TestCompileSchema_Cached(t *testing.T) {
	a, err := compileSchema(verdictSchema)
	if err != nil {
		t.Fatal(err)
	}
	b, err := compileSchema(verdictSchema)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second compile should reuse the cached validator")
	}
}
