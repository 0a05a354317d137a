// Package docs registers the operator API's OpenAPI document with swag so
// /swagger/ can serve it.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["operations"],
                "summary": "Database reachability",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/v1/mappings/{aggregate_type}/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["mappings"],
                "summary": "Look up a legacy to new key translation",
                "parameters": [
                    {"type": "string", "description": "customer, invoice, invoice_line or address", "name": "aggregate_type", "in": "path", "required": true},
                    {"type": "string", "description": "legacy integer id or new uuid", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.MappingResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/ledger/{unique_identifier}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ledger"],
                "summary": "Report whether an envelope was applied",
                "parameters": [
                    {"type": "string", "name": "unique_identifier", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.LedgerResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.AddressFields": {
            "type": "object",
            "properties": {
                "street": {"type": "string"},
                "city": {"type": "string"},
                "state": {"type": "string"},
                "country": {"type": "string"},
                "postal_code": {"type": "string"}
            }
        },
        "httptransport.MappingResponse": {
            "type": "object",
            "properties": {
                "aggregate_type": {"type": "string"},
                "old_id": {"type": "integer"},
                "new_id": {"type": "string"},
                "address": {"$ref": "#/definitions/httptransport.AddressFields"},
                "mapping_timestamp": {"type": "string"}
            }
        },
        "httptransport.LedgerResponse": {
            "type": "object",
            "properties": {
                "unique_identifier": {"type": "string"},
                "processed": {"type": "boolean"}
            }
        },
        "httptransport.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "schemabridge operator API",
	Description:      "Read-only lookups into the replication mapping store and ledger.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
