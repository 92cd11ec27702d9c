// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with `mage docs` after changing handler annotations.
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
        "/credits": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns plan, balance and period end. Reconciles with billing when the period has elapsed.",
                "produces": ["application/json"],
                "tags": ["Credits"],
                "summary": "Get credit account",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/credits.AccountResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/credits/entries": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Credits"],
                "summary": "List credit entries",
                "parameters": [
                    {"type": "integer", "description": "Page", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/credits.ListEntriesResponse"}}
                }
            }
        },
        "/credits/sync": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Credits"],
                "summary": "Sync subscription",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/credits.AccountResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/credits/provider-key": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "tags": ["Credits"],
                "summary": "Set own provider key",
                "parameters": [
                    {"description": "Provider key", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/credits.SetProviderKeyRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Credits"],
                "summary": "Remove own provider key",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/projects/{projectId}/generations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Generations"],
                "summary": "List generations",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "projectId", "in": "path", "required": true},
                    {"type": "integer", "description": "Page", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/generation.ListGenerationsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Starts an image generation. With wait=true the call blocks until the job is terminal or the wait runs out.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Generations"],
                "summary": "Create generation",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "projectId", "in": "path", "required": true},
                    {"type": "boolean", "description": "Block until terminal", "name": "wait", "in": "query"},
                    {"type": "string", "description": "Replays the first response for a repeated key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Generation request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/generation.CreateGenerationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/generation.GenerationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "402": {"description": "INSUFFICIENT_CREDITS or INSUFFICIENT_PROVIDER_CREDIT", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/generations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Safe to call on a short fixed interval until status is COMPLETED or FAILED.",
                "produces": ["application/json"],
                "tags": ["Generations"],
                "summary": "Get generation",
                "parameters": [
                    {"type": "string", "description": "Generation ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/generation.GenerationResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Generations"],
                "summary": "Delete generation",
                "parameters": [
                    {"type": "string", "description": "Generation ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        },
        "pagination.PageInfo": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "credits.AccountResponse": {
            "type": "object",
            "properties": {
                "plan": {"type": "string", "enum": ["free", "subscribed"]},
                "balance": {"type": "integer"},
                "credits_period_end": {"type": "string"},
                "has_provider_key": {"type": "boolean"},
                "eligible": {"type": "boolean"}
            }
        },
        "credits.SetProviderKeyRequest": {
            "type": "object",
            "required": ["key"],
            "properties": {"key": {"type": "string", "minLength": 8, "maxLength": 512}}
        },
        "credits.EntryResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["debit", "refund", "grant", "reset", "demote"]},
                "amount": {"type": "integer"},
                "reference": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "credits.ListEntriesResponse": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/credits.EntryResponse"}},
                "pagination": {"$ref": "#/definitions/pagination.PageInfo"}
            }
        },
        "generation.CreateGenerationRequest": {
            "type": "object",
            "required": ["prompt", "aspect_ratio"],
            "properties": {
                "prompt": {"type": "string", "maxLength": 4000},
                "aspect_ratio": {"type": "string", "enum": ["1:1", "4:3", "3:4", "3:2", "2:3", "16:9", "9:16", "21:9"]},
                "resolution_tier": {"type": "string", "enum": ["1K", "2K"]},
                "reference_image_url": {"type": "string"},
                "output_kind": {"type": "string", "enum": ["ASSET", "FRAME"]},
                "output_format": {"type": "string", "enum": ["png", "jpeg", "webp"]}
            }
        },
        "generation.GenerationResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "project_id": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "PROCESSING", "COMPLETED", "FAILED"]},
                "prompt": {"type": "string"},
                "aspect_ratio": {"type": "string"},
                "resolution_tier": {"type": "string"},
                "width": {"type": "integer"},
                "height": {"type": "integer"},
                "output_kind": {"type": "string"},
                "output_format": {"type": "string"},
                "reference_image_url": {"type": "string"},
                "provider": {"type": "string"},
                "funding": {"type": "string", "enum": ["credits", "own_key"]},
                "image_url": {"type": "string"},
                "error_kind": {"type": "string"},
                "error_message": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "generation.ListGenerationsResponse": {
            "type": "object",
            "properties": {
                "generations": {"type": "array", "items": {"$ref": "#/definitions/generation.GenerationResponse"}},
                "pagination": {"$ref": "#/definitions/pagination.PageInfo"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Artboard Server API",
	Description:      "Image generation jobs and generation credits for the Artboard canvas editor.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
