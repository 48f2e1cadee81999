// Package docs contains the generated swagger documentation.
// Run `swag init -g internal/server/api.go -o internal/server/docs` to regenerate.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tailt API",
        "description": "API for browsing and tailing AI conversation transcripts ingested by the tailt server.",
        "version": "1.0"
    },
    "host": "localhost:8719",
    "basePath": "/api/v1",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/projects": {
            "get": {
                "description": "Returns every project that has at least one ingested session",
                "produces": ["application/json"],
                "tags": ["projects"],
                "summary": "List projects",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ProjectsResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/projects/{projectID}/sessions": {
            "get": {
                "description": "Returns all sessions belonging to a project, newest first",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "List sessions for a project",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Project ID",
                        "name": "projectID",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SessionsResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/sessions/{sessionID}": {
            "get": {
                "description": "Returns a session's metadata including its entry high-water mark",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Get session metadata",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Session ID",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SessionMeta"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/sessions/{sessionID}/entries": {
            "get": {
                "description": "Returns entries with seq greater than after_seq, in seq order. Clients page forward by passing the last seq they received.",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Get session entries after a cursor",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Session ID",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Return entries with seq greater than this (default 0)",
                        "name": "after_seq",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Maximum entries to return (default 500)",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/EntriesResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/search": {
            "get": {
                "description": "Returns sessions whose entries, prompts, or summaries contain the query text",
                "produces": ["application/json"],
                "tags": ["search"],
                "summary": "Search sessions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Search query text",
                        "name": "q",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Maximum sessions to return (default 50)",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/SearchResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/stats": {
            "get": {
                "description": "Returns session and entry counts, database size, and server uptime",
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Get store statistics",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/Stats"
                        }
                    }
                }
            }
        },
        "/ws/ticket": {
            "post": {
                "description": "Exchanges the caller's credentials for a short-lived single-use ticket to pass as ?ticket= on the ws dial",
                "produces": ["application/json"],
                "tags": ["ws"],
                "summary": "Issue a WebSocket ticket",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/TicketResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/healthz": {
            "get": {
                "description": "Returns ok when the server is up. Never requires authentication.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/HealthResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "ProjectsResponse": {
            "type": "object",
            "properties": {
                "projects": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Project"
                    }
                }
            }
        },
        "Project": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "path": {"type": "string"},
                "session_count": {"type": "integer"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "SessionsResponse": {
            "type": "object",
            "properties": {
                "sessions": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/SessionMeta"
                    }
                }
            }
        },
        "SessionMeta": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "project_id": {"type": "string"},
                "path": {"type": "string"},
                "first_prompt": {"type": "string"},
                "summary": {"type": "string"},
                "entry_count": {"type": "integer"},
                "last_seq": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"},
                "git_branch": {"type": "string"},
                "model": {"type": "string"}
            }
        },
        "EntriesResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "after_seq": {"type": "integer"},
                "last_seq": {"type": "integer"},
                "has_more": {"type": "boolean"},
                "entries": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Entry"
                    }
                }
            }
        },
        "Entry": {
            "type": "object",
            "properties": {
                "seq": {"type": "integer"},
                "uuid": {"type": "string"},
                "parent_uuid": {"type": "string"},
                "role": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "text": {"type": "string"},
                "model": {"type": "string"},
                "git_branch": {"type": "string"}
            }
        },
        "SearchResponse": {
            "type": "object",
            "properties": {
                "results": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/SessionMeta"
                    }
                }
            }
        },
        "Stats": {
            "type": "object",
            "properties": {
                "started_at": {"type": "string", "format": "date-time"},
                "uptime_seconds": {"type": "number"},
                "total_sessions": {"type": "integer"},
                "total_entries": {"type": "integer"},
                "db_size_bytes": {"type": "integer"}
            }
        },
        "TicketResponse": {
            "type": "object",
            "properties": {
                "ticket": {"type": "string"}
            }
        },
        "HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "uptime_seconds": {"type": "number"}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8719",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Tailt API",
	Description:      "API for browsing and tailing AI conversation transcripts ingested by the tailt server.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
