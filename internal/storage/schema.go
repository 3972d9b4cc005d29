package storage

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"
)

// JSON Schemas for the persisted shapes. Load validates every decoded
// session and message against these and drops what does not conform, so one
// corrupt entry never rejects the whole collection.

const sessionSchemaJSON = `{
	"type": "object",
	"required": ["id", "title", "messages", "createdAt", "updatedAt"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"title": {"type": "string"},
		"messages": {"type": "array"},
		"createdAt": {"type": "string", "format": "date-time"},
		"updatedAt": {"type": "string", "format": "date-time"},
		"starred": {"type": "boolean"}
	}
}`

const messageSchemaJSON = `{
	"type": "object",
	"required": ["id", "role", "content", "timestamp"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"role": {"type": "string", "enum": ["user", "assistant", "system"]},
		"content": {"type": "string"},
		"timestamp": {"type": "string", "format": "date-time"},
		"isError": {"type": "boolean"}
	}
}`

var (
	sessionSchema = mustCompileSchema(sessionSchemaJSON)
	messageSchema = mustCompileSchema(messageSchemaJSON)
)

func mustCompileSchema(schemaJSON string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(err)
	}
	return schema
}

// validRaw reports whether one raw JSON document conforms to the schema.
func validRaw(schema *gojsonschema.Schema, raw json.RawMessage) bool {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	return err == nil && result.Valid()
}
