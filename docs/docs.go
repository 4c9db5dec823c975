// Package docs holds the swagger description of the envelope API.
// Regenerate with: swag init -g cmd/api/main.go -o docs
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
        "/budgets/{budgetId}/months": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["months"],
                "summary": "List stored months",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.MonthStatus"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the month with its balances, recalculating first if it is flagged",
                "produces": ["application/json"],
                "tags": ["months"],
                "summary": "Get month balances",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.MonthResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/dirty": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["months"],
                "summary": "Flag a month and every later month for recalculation",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/after/{year}/{month}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["months"],
                "summary": "Delete every month after the given one",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.DeletedMonthsResponse"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/transactions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Get a month's raw transactions",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthTransactions"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Replaces the month's transactions and flags it and every later month for recalculation",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Replace a month's transactions",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true},
                    {"description": "Transactions", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.MonthTransactions"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthTransactions"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Append transactions to a month",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true},
                    {"description": "Transactions", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.MonthTransactions"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthTransactions"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/transactions/{transactionId}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Delete one transaction",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true},
                    {"type": "string", "description": "Transaction ID", "name": "transactionId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthTransactions"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/allocations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["allocations"],
                "summary": "Get resolved allocations and their state",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthAllocationView"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["allocations"],
                "summary": "Delete finalized allocations",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthAllocationView"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/allocations/draft": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["allocations"],
                "summary": "Save fixed allocation amounts as a draft",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true},
                    {"description": "Draft amounts", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.SaveDraftRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthAllocationView"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["allocations"],
                "summary": "Discard the draft",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthAllocationView"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/allocations/edit": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["allocations"],
                "summary": "Reopen finalized allocations for editing",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthAllocationView"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/months/{year}/{month}/allocations/finalize": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["allocations"],
                "summary": "Persist the draft as the month's allocations",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "integer", "description": "Year", "name": "year", "in": "path", "required": true},
                    {"type": "integer", "description": "Month (1-12)", "name": "month", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.MonthAllocationView"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/recalculate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Recalculates every flagged month from the earliest one forward, or from an explicit month",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["recalculation"],
                "summary": "Recalculate forward",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"description": "Optional start month", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/handler.RecalculateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.RecalcResult"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/recalculate/all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Queues a full-history recalculation, or runs it as a background job when no queue is configured",
                "produces": ["application/json"],
                "tags": ["recalculation"],
                "summary": "Recalculate all months",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/domain.RecalcJob"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        },
        "/budgets/{budgetId}/recalculate/jobs/{jobId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["recalculation"],
                "summary": "Get a recalculation job",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "string", "description": "Job ID", "name": "jobId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.RecalcJob"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["recalculation"],
                "summary": "Cancel a recalculation job",
                "parameters": [
                    {"type": "string", "description": "Budget ID", "name": "budgetId", "in": "path", "required": true},
                    {"type": "string", "description": "Job ID", "name": "jobId", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/domain.RecalcJob"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ProblemDetails"}}
                }
            }
        }
    },
    "definitions": {
        "domain.MonthStatus": {"type": "object", "additionalProperties": true},
        "domain.MonthTransactions": {
            "type": "object",
            "properties": {
                "income": {"type": "array", "items": {"type": "object"}},
                "expenses": {"type": "array", "items": {"type": "object"}},
                "transfers": {"type": "array", "items": {"type": "object"}},
                "adjustments": {"type": "array", "items": {"type": "object"}}
            }
        },
        "domain.MonthAllocationView": {
            "type": "object",
            "properties": {
                "month": {"type": "object"},
                "state": {"type": "string", "enum": ["unset", "draft", "finalized", "editing_finalized"]},
                "previousMonthIncome": {"type": "string"},
                "allocations": {"type": "array", "items": {"type": "object"}}
            }
        },
        "domain.RecalcResult": {
            "type": "object",
            "properties": {
                "budgetId": {"type": "string"},
                "recalculated": {"type": "array", "items": {"type": "object"}},
                "changed": {"type": "array", "items": {"type": "object"}},
                "skipped": {"type": "array", "items": {"type": "object"}}
            }
        },
        "domain.RecalcJob": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "budgetId": {"type": "string"},
                "mode": {"type": "string", "enum": ["forward", "all"]},
                "status": {"type": "string", "enum": ["pending", "running", "succeeded", "failed", "cancelled"]},
                "progress": {"type": "object"},
                "error": {"type": "string"},
                "startedAt": {"type": "string"},
                "finishedAt": {"type": "string"},
                "remote": {"type": "boolean"}
            }
        },
        "handler.DeletedMonthsResponse": {
            "type": "object",
            "properties": {"deleted": {"type": "array", "items": {"type": "string"}}}
        },
        "handler.MonthResponse": {
            "type": "object",
            "additionalProperties": true,
            "properties": {"key": {"type": "string"}, "label": {"type": "string"}}
        },
        "handler.ProblemDetails": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "title": {"type": "string"},
                "status": {"type": "integer"},
                "detail": {"type": "string"},
                "instance": {"type": "string"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/handler.ValidationError"}}
            }
        },
        "handler.RecalculateRequest": {
            "type": "object",
            "properties": {"from": {"type": "string", "example": "2024-03"}}
        },
        "handler.SaveDraftRequest": {
            "type": "object",
            "properties": {"amounts": {"type": "object", "additionalProperties": {"type": "string"}}}
        },
        "handler.ValidationError": {
            "type": "object",
            "properties": {"field": {"type": "string"}, "message": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Auth0 access token, prefixed with \"Bearer \"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Envelope API",
	Description:      "Monthly ledger recalculation for envelope budgets.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
