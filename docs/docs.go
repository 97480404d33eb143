// Package docs registers the OpenAPI document for the pipeline API.
// Regenerate with: swag init -g cmd/pipeline-api/main.go
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
        "/runs/streaming": {
            "post": {
                "description": "Discover unprocessed trip-event files and load each into the warehouse",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Run the streaming pipeline",
                "responses": {
                    "200": {"description": "Run summary", "schema": {"$ref": "#/definitions/model.RunSummary"}},
                    "500": {"description": "Run aborted", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/runs/batch": {
            "post": {
                "description": "Load the named monthly trip files",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Run the batch pipeline",
                "parameters": [
                    {"description": "Objects to load", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.batchRequest"}}
                ],
                "responses": {
                    "200": {"description": "Run summary", "schema": {"$ref": "#/definitions/model.RunSummary"}},
                    "400": {"description": "Invalid request payload", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "500": {"description": "Run aborted", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/cleanse": {
            "post": {
                "description": "Validate and transform a batch of base64 trip events",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["cleanse"],
                "summary": "Cleanse trip events",
                "parameters": [
                    {"description": "Records", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.cleanseRequest"}},
                    {"type": "boolean", "description": "Write Ok records to the parquet sink", "name": "export", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "One output per input", "schema": {"$ref": "#/definitions/handler.cleanseResponse"}},
                    "400": {"description": "Invalid request payload", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/ledger/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ledger"],
                "summary": "Get a processed-file entry",
                "parameters": [{"type": "string", "description": "Pipeline ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Ledger entry", "schema": {"$ref": "#/definitions/model.LedgerEntry"}},
                    "404": {"description": "Not processed", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/stages/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["stages"],
                "summary": "List stage records for a pipeline",
                "parameters": [{"type": "string", "description": "Pipeline ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Stage records", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.StageRecord"}}}
                }
            }
        }
    },
    "definitions": {
        "handler.errorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "handler.batchRequest": {
            "type": "object",
            "properties": {"objects": {"type": "array", "items": {"$ref": "#/definitions/model.ObjectRef"}}}
        },
        "handler.cleanseRequest": {
            "type": "object",
            "properties": {"records": {"type": "array", "items": {"$ref": "#/definitions/model.EncodedRecord"}}}
        },
        "handler.cleanseResponse": {
            "type": "object",
            "properties": {"records": {"type": "array", "items": {"$ref": "#/definitions/model.EncodedOutput"}}}
        },
        "model.ObjectRef": {
            "type": "object",
            "properties": {"bucket": {"type": "string"}, "key": {"type": "string"}}
        },
        "model.EncodedRecord": {
            "type": "object",
            "properties": {"recordId": {"type": "string"}, "data": {"type": "string"}}
        },
        "model.EncodedOutput": {
            "type": "object",
            "properties": {"recordId": {"type": "string"}, "result": {"type": "string"}, "data": {"type": "string"}, "metadata": {"type": "object"}}
        },
        "model.RunSummary": {
            "type": "object",
            "properties": {
                "invocation_id": {"type": "string"},
                "pipeline_type": {"type": "string"},
                "started_at": {"type": "string"},
                "duration": {"type": "integer"},
                "discovered": {"type": "integer"},
                "succeeded": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"},
                "rejected": {"type": "integer"},
                "files": {"type": "array", "items": {"type": "object"}}
            }
        },
        "model.LedgerEntry": {
            "type": "object",
            "properties": {
                "pipeline_id": {"type": "string"},
                "pipeline_type": {"type": "string"},
                "dataset_name": {"type": "string"},
                "source_uri": {"type": "string"},
                "status": {"type": "string"},
                "processed_at": {"type": "string"}
            }
        },
        "model.StageRecord": {
            "type": "object",
            "properties": {
                "pipeline_id": {"type": "string"},
                "stage": {"type": "string"},
                "status": {"type": "string"},
                "attempt": {"type": "string"},
                "timestamp": {"type": "string"},
                "details": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Trip Pipeline API",
	Description:      "Trip-event cleansing and warehouse loading.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
