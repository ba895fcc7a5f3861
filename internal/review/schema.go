package review

import "github.com/abhisek/gradewise/internal/llm"

// GradingSchema defines the JSON schema for LLM grading responses.
var GradingSchema = &llm.Schema{
	Name:        "answer-grading",
	Description: "Grade of a student's free-text answer against the question's expectations",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score_fraction": map[string]any{
				"type":        "number",
				"minimum":     0.0,
				"maximum":     1.0,
				"description": "Share of the available points the answer earns (0.0–1.0)",
			},
			"correct": map[string]any{
				"type":        "boolean",
				"description": "Whether the answer is acceptable as correct",
			},
			"confidence": map[string]any{
				"type":        "number",
				"minimum":     0.0,
				"maximum":     1.0,
				"description": "How certain the grade is (0.0–1.0)",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "One or two sentences of feedback addressed to the student",
			},
			"strengths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Short phrases naming what the answer does well",
			},
			"improvements": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Short phrases naming what the answer should improve",
			},
			"criterion_scores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"criterion_id": map[string]any{"type": "string"},
						"points":       map[string]any{"type": "number", "minimum": 0.0},
					},
					"required":             []any{"criterion_id", "points"},
					"additionalProperties": false,
				},
				"description": "Points per rubric criterion; empty when no rubric is given",
			},
		},
		"required":             []any{"score_fraction", "correct", "confidence", "feedback", "strengths", "improvements", "criterion_scores"},
		"additionalProperties": false,
	},
}
