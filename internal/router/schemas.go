package router

// toolSchemas holds a JSON Schema (draft-4, the dialect gojsonschema
// implements) per tool name, validated before the operation runs
// (spec §4.N).
var toolSchemas = map[string]string{
	ToolFileRead: `{
		"type": "object",
		"required": ["path"],
		"properties": {
			"path": {"type": "string"},
			"allowProtected": {"type": "boolean"},
			"startLine": {"type": "integer"},
			"endLine": {"type": "integer"}
		}
	}`,
	ToolFileManage: `{
		"type": "object",
		"required": ["action", "path"],
		"properties": {
			"action": {"type": "string", "enum": ["create", "delete", "rename", "move"]},
			"path": {"type": "string"},
			"content": {"type": "string"},
			"newName": {"type": "string"},
			"destination": {"type": "string"},
			"recursive": {"type": "boolean"},
			"allowProtected": {"type": "boolean"}
		}
	}`,
	ToolListDirectory: `{
		"type": "object",
		"properties": {"path": {"type": "string"}}
	}`,
	ToolFindFile: `{
		"type": "object",
		"required": ["pattern"],
		"properties": {"pattern": {"type": "string"}}
	}`,
	ToolFileInfo: `{
		"type": "object",
		"required": ["path"],
		"properties": {"path": {"type": "string"}}
	}`,
	ToolEditFile: `{
		"type": "object",
		"required": ["path"],
		"properties": {
			"path": {"type": "string"},
			"allowProtected": {"type": "boolean"},
			"infinityRange": {"type": "boolean"},
			"accessToken": {"type": "string"},
			"expectedChecksum": {"type": "integer"},
			"oldText": {"type": "string"},
			"newText": {"type": "string"},
			"hunks": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["operation", "startLine"],
					"properties": {
						"operation": {"type": "string", "enum": ["replace", "insert_before", "insert_after", "delete"]},
						"startLine": {"type": "integer"},
						"endLine": {"type": "integer"},
						"content": {"type": "string"},
						"expectedContent": {"type": "string"},
						"contextStartPattern": {"type": "string"}
					}
				}
			}
		}
	}`,
	ToolProjectReplace: `{
		"type": "object",
		"required": ["pattern", "replacement"],
		"properties": {
			"pattern": {"type": "string"},
			"replacement": {"type": "string"},
			"dryRun": {"type": "boolean"}
		}
	}`,
	ToolBatchTools: `{
		"type": "object",
		"required": ["steps"],
		"properties": {
			"instruction": {"type": "string"},
			"steps": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["tool"],
					"properties": {
						"id": {"type": "string"},
						"tool": {"type": "string"},
						"params": {"type": "object"}
					}
				}
			}
		}
	}`,
	ToolSession: `{
		"type": "object",
		"required": ["action"],
		"properties": {
			"action": {"type": "string", "enum": ["checkpoint", "rollback", "undo", "redo", "journal", "git_checkpoint", "git_restore"]},
			"name": {"type": "string"}
		}
	}`,
	ToolTodoCreate: `{
		"type": "object",
		"required": ["title", "tasks"],
		"properties": {
			"title": {"type": "string"},
			"tasks": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	ToolTodoUpdate: `{
		"type": "object",
		"required": ["taskNumber", "done"],
		"properties": {
			"taskNumber": {"type": "integer"},
			"done": {"type": "boolean"}
		}
	}`,
	ToolGitCommitSession: `{
		"type": "object",
		"required": ["message", "paths"],
		"properties": {
			"message": {"type": "string"},
			"paths": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	ToolProjectStructure: `{
		"type": "object",
		"properties": {"maxDepth": {"type": "integer"}}
	}`,
	ToolSearchFiles: `{
		"type": "object",
		"required": ["pattern"],
		"properties": {"pattern": {"type": "string"}}
	}`,
}
