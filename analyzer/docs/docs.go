// Package docs swagger-описание API анализатора; обновляется командой
// swag init -g cmd/analyzer/main.go -o docs
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
        "/api/sessions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Список сессий",
                "parameters": [
                    {"type": "integer", "description": "Лимит", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Смещение", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/session.Session"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Создать сессию",
                "parameters": [
                    {"description": "Параметры сессии", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/session.CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/session.Session"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}}
                }
            }
        },
        "/api/sessions/analyze": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Анализ записи целиком",
                "parameters": [
                    {"description": "Запись: частота и отсчеты по отведениям", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/session.AnalyzeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.SessionData"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}}
                }
            }
        },
        "/api/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Получить сессию",
                "parameters": [{"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.Session"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            },
            "delete": {
                "tags": ["sessions"],
                "summary": "Удалить сессию",
                "parameters": [{"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/api/sessions/{id}/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Остановить сессию и скорректировать RR",
                "parameters": [{"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.Analysis"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}},
                    "409": {"description": "Conflict", "schema": {"type": "object"}}
                }
            }
        },
        "/api/sessions/{id}/save": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["sessions"],
                "summary": "Сохранить сессию в архив",
                "parameters": [
                    {"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true},
                    {"description": "Заметки", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/session.SaveSessionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/sessions/{id}/beats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Удары сессии",
                "parameters": [{"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/session.BeatRecord"}}}}
            }
        },
        "/api/sessions/{id}/intervals": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Скорректированные RR-интервалы",
                "parameters": [{"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/session.Analysis"}}}
            }
        },
        "/api/sessions/{id}/data": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Все данные сессии",
                "parameters": [{"type": "string", "description": "ID сессии", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/session.SessionData"}}}
            }
        }
    },
    "definitions": {
        "session.Session": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["ACTIVE", "STOPPED", "SAVED"]},
                "started_at": {"type": "string"},
                "stopped_at": {"type": "string"},
                "saved_at": {"type": "string"},
                "total_duration_ms": {"type": "integer"},
                "total_beats": {"type": "integer"},
                "sampling_rate": {"type": "number"},
                "lead": {"type": "string"},
                "exact_lead": {"type": "boolean"},
                "method": {"type": "string", "enum": ["knowledge", "classical"]},
                "metadata": {"type": "object"}
            }
        },
        "session.CreateSessionRequest": {
            "type": "object",
            "properties": {
                "device_id": {"type": "string"},
                "notes": {"type": "string"},
                "custom_data": {"type": "object"},
                "created_from": {"type": "string"},
                "sampling_rate": {"type": "number"},
                "method": {"type": "string"}
            }
        },
        "session.SaveSessionRequest": {
            "type": "object",
            "properties": {"notes": {"type": "string"}}
        },
        "session.AnalyzeRequest": {
            "type": "object",
            "properties": {
                "sampling_rate": {"type": "number"},
                "leads": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "number"}}},
                "preferred_lead": {"type": "string"},
                "method": {"type": "string"},
                "keep_unexplained": {"type": "boolean"},
                "notes": {"type": "string"}
            }
        },
        "session.BeatRecord": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "seq": {"type": "integer"},
                "lead": {"type": "string"},
                "r": {"type": "integer"},
                "time_sec": {"type": "number"},
                "r_amplitude": {"type": "number"},
                "q": {"type": "integer"},
                "s": {"type": "integer"},
                "start": {"type": "integer"},
                "end": {"type": "integer"},
                "rr": {"type": "integer"},
                "correlation": {"type": "number"},
                "displacement": {"type": "integer"}
            }
        },
        "session.IntervalRecord": {
            "type": "object",
            "properties": {
                "position": {"type": "integer"},
                "timestamp": {"type": "integer"},
                "value": {"type": "integer"},
                "value_ms": {"type": "number"},
                "reference": {"type": "integer"},
                "outlier": {"type": "boolean"}
            }
        },
        "session.Analysis": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "report": {"type": "object"},
                "intervals": {"type": "array", "items": {"$ref": "#/definitions/session.IntervalRecord"}},
                "mean_rr_ms": {"type": "number"},
                "heart_rate_bpm": {"type": "number"},
                "updated_at": {"type": "string"}
            }
        },
        "session.SessionData": {
            "type": "object",
            "properties": {
                "session": {"$ref": "#/definitions/session.Session"},
                "beats": {"type": "array", "items": {"$ref": "#/definitions/session.BeatRecord"}},
                "analysis": {"$ref": "#/definitions/session.Analysis"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "ECG Monitory Analyzer API",
	Description:      "Детекция QRS, сборка ударов и коррекция RR-интервалов.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
