package schemas

// SystemSchemas returns schemas for system-related tools.
func SystemSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"get_current_time": {
			Description: "Get the current date and time. Optionally specify an IANA timezone (e.g. 'Asia/Bangkok', 'America/New_York'). If no timezone is provided, returns the server's local time.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "IANA timezone name, e.g. 'America/New_York', 'Asia/Bangkok', 'Europe/London'",
					},
				},
				"required": []string{},
			},
		},
	}
}
