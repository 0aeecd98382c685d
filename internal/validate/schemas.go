package validate

// Versioned JSON Schema definitions for the on-disk documents. These back
// the first validation layer; later layers enforce what a schema cannot
// (cross-entity references, cycles, state machines).

const todoSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "tasks"],
  "properties": {
    "version": {"type": "string", "pattern": "^\\d+\\.\\d+$"},
    "_meta": {"$ref": "#/$defs/meta"},
    "project": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "currentPhase": {"type": "string"},
        "phases": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "required": ["name", "order", "status"],
            "properties": {
              "name": {"type": "string"},
              "order": {"type": "integer"},
              "status": {"enum": ["pending", "active", "completed"]}
            }
          }
        }
      }
    },
    "tasks": {"type": "array", "items": {"$ref": "#/$defs/task"}}
  },
  "$defs": {
    "meta": {
      "type": "object",
      "properties": {
        "schemaVersion": {"type": "string"},
        "checksum": {"type": "string", "pattern": "^[0-9a-f]{16}$"}
      }
    },
    "task": {
      "type": "object",
      "required": ["id", "title", "status", "priority", "type", "createdAt", "updatedAt"],
      "properties": {
        "id": {"type": "string", "pattern": "^T\\d+$"},
        "title": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "status": {"enum": ["pending", "active", "blocked", "done", "cancelled"]},
        "priority": {"enum": ["critical", "high", "medium", "low"]},
        "type": {"enum": ["epic", "task", "subtask"]},
        "parentId": {"type": "string", "pattern": "^T\\d+$"},
        "depends": {"type": "array", "items": {"type": "string", "pattern": "^T\\d+$"}},
        "labels": {"type": "array", "items": {"type": "string"}},
        "size": {"enum": ["small", "medium", "large"]},
        "files": {"type": "array", "items": {"type": "string"}},
        "relates": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["taskId", "type"],
            "properties": {
              "taskId": {"type": "string", "pattern": "^T\\d+$"},
              "type": {"enum": ["relates-to", "spawned-from", "deferred-to", "supersedes", "duplicates"]}
            }
          }
        }
      }
    }
  }
}`

const archiveSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "tasks"],
  "properties": {
    "version": {"type": "string", "pattern": "^\\d+\\.\\d+$"},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "status"],
        "properties": {
          "id": {"type": "string", "pattern": "^T\\d+$"},
          "status": {"enum": ["done", "cancelled", "pending", "active", "blocked"]}
        }
      }
    }
  }
}`

const sessionsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "sessions"],
  "properties": {
    "version": {"type": "string", "pattern": "^\\d+\\.\\d+$"},
    "sessions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "status", "scope", "startedAt"],
        "properties": {
          "id": {"type": "string", "pattern": "^session_\\d{8}_\\d{6}_[0-9a-f]{6}$"},
          "status": {"enum": ["active", "suspended", "ended", "orphaned"]},
          "scope": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": {"enum": ["global", "epic", "subtree", "custom"]},
              "epicId": {"type": "string", "pattern": "^T\\d+$"},
              "rootId": {"type": "string", "pattern": "^T\\d+$"}
            }
          }
        }
      }
    }
  }
}`
