package handlers

import (
	"encoding/json"

	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
)

const (
	queryRequestSchema = `{
		"type": "object",
		"required": ["sql"],
		"properties": {
			"sql": {"type": "string", "pattern": "\\S"},
			"max_rows": {"type": "integer", "minimum": 1, "maximum": 100000}
		},
		"additionalProperties": false
	}`

	executeRequestSchema = `{
		"type": "object",
		"required": ["sql"],
		"properties": {
			"sql": {"type": "string", "pattern": "\\S"}
		},
		"additionalProperties": false
	}`

	hashRequestSchema = `{
		"type": "object",
		"required": ["algorithm", "text"],
		"properties": {
			"algorithm": {"type": "string", "minLength": 1},
			"encoding": {"type": "string"},
			"text": {"type": "string"}
		},
		"additionalProperties": false
	}`
)

var (
	querySchema   = mustSchema(queryRequestSchema)
	executeSchema = mustSchema(executeRequestSchema)
	hashSchema    = mustSchema(hashRequestSchema)
)

func mustSchema(source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic("invalid request schema: " + err.Error())
	}
	return schema
}

// bindValidated checks the request body against schema and decodes it
// into dst. On failure it writes a 400 response and returns false.
func bindValidated(c *gin.Context, schema *gojsonschema.Schema, dst any) bool {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return false
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return false
	}
	if !result.Valid() {
		response.ValidationErrors(c, lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) response.ValidationError {
			return response.ValidationError{Field: e.Field(), Message: e.Description()}
		}))
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return false
	}
	return true
}
