package schemas

// MemorySchemas returns schemas for memory-related tools.
func MemorySchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"search_memory": {
			Description: "Search earlier messages in this conversation by meaning. Use it when the user refers to something they told you before that is not in the recent messages.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to look for, phrased as a question or statement.",
					},
					"limit": map[string]any{
						"type":        "number",
						"description": "Maximum number of results to return (default: 5, max: 20).",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
