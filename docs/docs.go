// Package docs registers the OpenAPI document of the HTTP API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/availability": {
            "get": {
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Provider availability",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "boolean"}}}}
            }
        },
        "/chat": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["text/event-stream", "application/json"],
                "tags": ["chat"],
                "summary": "Send a query to the current conversation",
                "parameters": [
                    {"description": "Query", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.Chat_Request"}},
                    {"type": "string", "description": "sse (default), ws or json", "name": "delivery", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "SSE stream of delta, state and done events, or the final message for json"},
                    "202": {"description": "Accepted, events go to the websocket", "schema": {"$ref": "#/definitions/api.Chat_Accepted"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/chat/export": {
            "get": {
                "produces": ["application/json"],
                "tags": ["library"],
                "summary": "Export the current conversation",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/chat/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Stop the reply of the current conversation",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/conversations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "List conversations",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Create a conversation",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/conversations/{id}": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Rename a conversation",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "Title", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.Rename_Request"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.Error_Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            },
            "delete": {
                "tags": ["conversations"],
                "summary": "Delete a conversation",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/conversations/{id}/current": {
            "put": {
                "tags": ["conversations"],
                "summary": "Make a conversation current",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "List the messages of a conversation",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/library/export": {
            "get": {
                "produces": ["application/json"],
                "tags": ["library"],
                "summary": "Export every conversation",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/library/import": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["library"],
                "summary": "Replace every conversation with a library file",
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/library/schema": {
            "get": {
                "produces": ["application/json"],
                "tags": ["library"],
                "summary": "JSON schema of the library file",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Search the current chat and the library",
                "parameters": [{"type": "string", "description": "Text to find", "name": "q", "in": "query", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/settings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Read settings with masked credentials",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.Settings_Response"}}}
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Write credentials and preferences",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.Settings_Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/share": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Share the current conversation",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Sync not attached", "schema": {"$ref": "#/definitions/api.Error_Response"}},
                    "502": {"description": "Remote write failed", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/shared/{token}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Read a shared conversation",
                "parameters": [{"type": "string", "description": "Share token", "name": "token", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/sync": {
            "delete": {
                "tags": ["sync"],
                "summary": "Detach sync",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/sync/attach": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Attach sync for the user in X-User-ID",
                "parameters": [{"type": "string", "description": "User ID", "name": "X-User-ID", "in": "header", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.Error_Response"}},
                    "503": {"description": "No remote store", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/vision": {
            "post": {
                "consumes": ["image/jpeg", "image/png", "image/webp"],
                "produces": ["text/event-stream", "application/json"],
                "tags": ["chat"],
                "summary": "Describe a camera frame into the current conversation",
                "parameters": [
                    {"description": "Frame", "name": "frame", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}},
                    {"type": "string", "description": "sse (default) or ws", "name": "delivery", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "SSE stream of delta, state and done events"},
                    "202": {"description": "Accepted, events go to the websocket", "schema": {"$ref": "#/definitions/api.Chat_Accepted"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.Error_Response"}},
                    "413": {"description": "Frame too large", "schema": {"$ref": "#/definitions/api.Error_Response"}},
                    "503": {"description": "Gemini not configured", "schema": {"$ref": "#/definitions/api.Error_Response"}}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["chat"],
                "summary": "Websocket of conversation changes, reply events and audio",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "api.Chat_Accepted": {
            "type": "object",
            "properties": {
                "conversationId": {"type": "string"},
                "messageId": {"type": "integer"}
            }
        },
        "api.Chat_Request": {
            "type": "object",
            "required": ["query"],
            "properties": {"query": {"type": "string"}}
        },
        "api.Error_Response": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "api.Rename_Request": {
            "type": "object",
            "required": ["title"],
            "properties": {"title": {"type": "string"}}
        },
        "api.Settings_Response": {
            "type": "object",
            "properties": {
                "availability": {"type": "object", "additionalProperties": {"type": "boolean"}},
                "credentials": {"type": "object", "additionalProperties": {"type": "string"}},
                "preferences": {"type": "object"},
                "syncUid": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Lagos Oracle API",
	Description:      "Chat, media generation, conversation library and sync.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
