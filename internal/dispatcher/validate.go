package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

// schemas holds one JSON Schema per tool name, validated against the
// raw argument bag before a handler ever sees it. Tools not listed here
// accept any well-formed JSON object; this mirrors the teacher's
// webhook validator, which only schema-checks payload shapes it
// actually depends on rather than every possible inbound shape.
var schemas = map[string]string{
	"rag_ingest": `{
		"type": "object",
		"required": ["document_content", "metadata"],
		"properties": {
			"document_content": {"type": "string", "minLength": 1},
			"metadata": {
				"type": "object",
				"required": ["title"],
				"properties": {"title": {"type": "string", "minLength": 1}}
			}
		}
	}`,
	"rag_search": `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"limit": {"type": "integer", "minimum": 0, "maximum": 100}
		}
	}`,
	"rag_list_documents": `{
		"type": "object",
		"properties": {
			"limit": {"type": "integer", "minimum": 0, "maximum": 100},
			"offset": {"type": "integer", "minimum": 0}
		}
	}`,
	"rag_delete_document": `{
		"type": "object",
		"required": ["document_id"],
		"properties": {"document_id": {"type": "string", "minLength": 1}}
	}`,
	"rag_get_document": `{
		"type": "object",
		"required": ["document_id"],
		"properties": {"document_id": {"type": "string", "minLength": 1}}
	}`,
	"rag_delete_tenant": `{
		"type": "object",
		"required": ["tenant_id", "confirmation", "delete_type"],
		"properties": {
			"tenant_id": {"type": "string", "minLength": 1},
			"confirmation": {"type": "string", "minLength": 1},
			"delete_type": {"type": "string", "enum": ["soft", "hard"]}
		}
	}`,
	"rag_rebuild_index": `{
		"type": "object",
		"required": ["tenant_id", "confirmation_code"],
		"properties": {
			"tenant_id": {"type": "string", "minLength": 1},
			"confirmation_code": {"type": "string", "minLength": 1}
		}
	}`,
	"rag_update_subscription_tier": `{
		"type": "object",
		"required": ["tenant_id", "tier"],
		"properties": {
			"tenant_id": {"type": "string", "minLength": 1},
			"tier": {"type": "string", "enum": ["free", "basic", "premium", "enterprise"]}
		}
	}`,
}

var compiledSchemas = make(map[string]*gojsonschema.Schema)

func compiledSchemaFor(toolName string) (*gojsonschema.Schema, error) {
	if s, ok := compiledSchemas[toolName]; ok {
		return s, nil
	}
	raw, ok := schemas[toolName]
	if !ok {
		return nil, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: compile schema for %s: %w", toolName, err)
	}
	compiledSchemas[toolName] = schema
	return schema, nil
}

// validateArgs checks args against toolName's schema, if one is
// registered. It returns apperrors.KindValidation listing every failing
// rule in one message, the error kind reserved for malformed input.
func validateArgs(toolName string, args Args) error {
	schema, err := compiledSchemaFor(toolName)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "FR-VALIDATE-001", err)
	}
	if schema == nil {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "FR-VALIDATE-002", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "FR-VALIDATE-002", err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}
		return apperrors.New(apperrors.KindValidation, "FR-VALIDATE-003", strings.Join(messages, "; "))
	}
	return nil
}
