package engine

// Response schemas handed to the text backend for structured output.
// Shapes follow the generateContent responseSchema subset of OpenAPI.

func unitSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"scene_id": map[string]interface{}{"type": "STRING"},
			"text":     map[string]interface{}{"type": "STRING"},
			"speaker":  map[string]interface{}{"type": "STRING"},
			"speaker_id": map[string]interface{}{
				"type":        "STRING",
				"description": "roster id of the speaking character, empty for the narrator",
			},
			"visual": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"style":    map[string]interface{}{"type": "STRING"},
					"camera":   map[string]interface{}{"type": "STRING"},
					"lighting": map[string]interface{}{"type": "STRING"},
					"mood":     map[string]interface{}{"type": "STRING"},
					"characters": map[string]interface{}{
						"type": "ARRAY",
						"items": map[string]interface{}{
							"type": "OBJECT",
							"properties": map[string]interface{}{
								"id":         map[string]interface{}{"type": "STRING"},
								"outfit":     map[string]interface{}{"type": "STRING"},
								"expression": map[string]interface{}{"type": "STRING"},
								"pose":       map[string]interface{}{"type": "STRING"},
							},
						},
					},
					"environment": map[string]interface{}{"type": "STRING"},
					"quality":     map[string]interface{}{"type": "STRING"},
				},
			},
			"choices": map[string]interface{}{
				"type": "ARRAY",
				"items": map[string]interface{}{
					"type": "OBJECT",
					"properties": map[string]interface{}{
						"id":     map[string]interface{}{"type": "STRING"},
						"text":   map[string]interface{}{"type": "STRING"},
						"impact": map[string]interface{}{"type": "STRING"},
					},
					"required": []string{"id", "text"},
				},
			},
			"ledger_updates": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"integrity":  map[string]interface{}{"type": "INTEGER"},
					"trauma":     map[string]interface{}{"type": "INTEGER"},
					"stress":     map[string]interface{}{"type": "INTEGER"},
					"hope":       map[string]interface{}{"type": "INTEGER"},
					"compliance": map[string]interface{}{"type": "INTEGER"},
					"phase":      map[string]interface{}{"type": "STRING"},
				},
			},
			"graph_updates": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"nodes": map[string]interface{}{
						"type": "ARRAY",
						"items": map[string]interface{}{
							"type": "OBJECT",
							"properties": map[string]interface{}{
								"id":    map[string]interface{}{"type": "STRING"},
								"label": map[string]interface{}{"type": "STRING"},
								"group": map[string]interface{}{"type": "STRING"},
							},
							"required": []string{"id"},
						},
					},
					"links": map[string]interface{}{
						"type": "ARRAY",
						"items": map[string]interface{}{
							"type": "OBJECT",
							"properties": map[string]interface{}{
								"source":   map[string]interface{}{"type": "STRING"},
								"target":   map[string]interface{}{"type": "STRING"},
								"label":    map[string]interface{}{"type": "STRING"},
								"strength": map[string]interface{}{"type": "NUMBER"},
							},
							"required": []string{"source", "target"},
						},
					},
				},
			},
			"audio": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"ambient": map[string]interface{}{"type": "STRING"},
					"effect":  map[string]interface{}{"type": "STRING"},
					"mood":    map[string]interface{}{"type": "STRING"},
				},
			},
			"hidden_plots": map[string]interface{}{
				"type":  "ARRAY",
				"items": map[string]interface{}{"type": "STRING"},
			},
			"future_hooks": map[string]interface{}{
				"type":  "ARRAY",
				"items": map[string]interface{}{"type": "STRING"},
			},
		},
		"required": []string{"scene_id", "text", "choices", "visual"},
	}
}

func briefSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"analysis": map[string]interface{}{"type": "STRING"},
			"critique": map[string]interface{}{"type": "STRING"},
			"directives": map[string]interface{}{
				"type":  "ARRAY",
				"items": map[string]interface{}{"type": "STRING"},
			},
			"focus_characters": map[string]interface{}{
				"type":  "ARRAY",
				"items": map[string]interface{}{"type": "STRING"},
			},
		},
		"required": []string{"analysis", "directives"},
	}
}
