package models

// JSON Schemas for per-type node config validation, checked at workflow load.
// Shapes stay permissive (additional properties allowed) so older definitions keep
// loading; required fields and enums are the hard constraints.

var buttonSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":    map[string]any{"type": "string"},
		"title": map[string]any{"type": "string"},
		"kind": map[string]any{
			"type": "string",
			"enum": []string{"", "quick_reply", "call", "url", "copy"},
		},
		"phone":     map[string]any{"type": "string"},
		"url":       map[string]any{"type": "string"},
		"copy_code": map[string]any{"type": "string"},
	},
}

var configSchemas = map[NodeType]map[string]any{
	NodeTypeText: {
		"type": "object",
		"properties": map[string]any{
			"body": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"body"},
	},
	NodeTypeMedia: {
		"type": "object",
		"properties": map[string]any{
			"media_url": map[string]any{"type": "string", "minLength": 1},
			"media_type": map[string]any{
				"type": "string",
				"enum": []string{"image", "video", "audio", "document"},
			},
			"caption": map[string]any{"type": "string"},
		},
		"required": []string{"media_url"},
	},
	NodeTypeLocation: {
		"type": "object",
		"properties": map[string]any{
			"latitude":  map[string]any{"type": "number"},
			"longitude": map[string]any{"type": "number"},
			"name":      map[string]any{"type": "string"},
			"address":   map[string]any{"type": "string"},
		},
		"required": []string{"latitude", "longitude"},
	},
	NodeTypeQuickReply:      interactiveSchema(),
	NodeTypeQuickReplyImage: interactiveSchema(),
	NodeTypeQuickReplyVideo: interactiveSchema(),
	NodeTypeButtons:         interactiveSchema(),
	NodeTypeListMessage: {
		"type": "object",
		"properties": map[string]any{
			"header":      map[string]any{"type": "string"},
			"body":        map[string]any{"type": "string"},
			"footer":      map[string]any{"type": "string"},
			"button_text": map[string]any{"type": "string"},
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
						"rows": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":          map[string]any{"type": "string"},
									"title":       map[string]any{"type": "string"},
									"description": map[string]any{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"required": []string{"body"},
	},
	NodeTypeCarousel: {
		"type": "object",
		"properties": map[string]any{
			"body": map[string]any{"type": "string"},
			"cards": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string"},
						"media_url":  map[string]any{"type": "string"},
						"media_type": map[string]any{"type": "string"},
						"text":       map[string]any{"type": "string"},
						"buttons":    map[string]any{"type": "array", "items": buttonSchema},
					},
				},
			},
		},
		"required": []string{"cards"},
	},
	NodeTypeHTTPRequest: {
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{
				"type": "string",
				"enum": []string{"", "GET", "POST", "PUT", "PATCH", "get", "post", "put", "patch"},
			},
			"headers":      map[string]any{"type": "object"},
			"query_params": map[string]any{"type": "object"},
			"body_type": map[string]any{
				"type": "string",
				"enum": []string{"", "json", "form"},
			},
			"body":        map[string]any{"type": "string"},
			"form_fields": map[string]any{"type": "object"},
			"auth": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type": "string",
						"enum": []string{"", "none", "bearer", "basic"},
					},
					"token":    map[string]any{"type": "string"},
					"username": map[string]any{"type": "string"},
					"password": map[string]any{"type": "string"},
				},
			},
			"timeout_seconds": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 300,
			},
			"response_mapping": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"json_path":     map[string]any{"type": "string"},
						"variable_name": map[string]any{"type": "string"},
					},
					"required": []string{"json_path", "variable_name"},
				},
			},
		},
		"required": []string{"url"},
	},
}

func interactiveSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"header":    map[string]any{"type": "string"},
			"body":      map[string]any{"type": "string"},
			"footer":    map[string]any{"type": "string"},
			"media_url": map[string]any{"type": "string"},
			"buttons":   map[string]any{"type": "array", "items": buttonSchema},
		},
		"required": []string{"body"},
	}
}
