package validation

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.schema.yaml
var schemaFS embed.FS

// SchemaValidator checks decoded model output against the embedded
// plan and workflow schemas before it is trusted as a typed value
type SchemaValidator struct {
	planSchema     *jsonschema.Schema
	workflowSchema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded schemas
func NewSchemaValidator() (*SchemaValidator, error) {
	planSchema, err := loadSchema("schemas/plan.schema.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load plan schema: %w", err)
	}

	workflowSchema, err := loadSchema("schemas/workflow.schema.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow schema: %w", err)
	}

	return &SchemaValidator{
		planSchema:     planSchema,
		workflowSchema: workflowSchema,
	}, nil
}

// ValidatePlanDocument validates raw plan JSON against the plan schema
func (v *SchemaValidator) ValidatePlanDocument(raw []byte) error {
	return validateRaw(v.planSchema, raw)
}

// ValidateWorkflowDocument validates raw workflow JSON against the
// workflow schema
func (v *SchemaValidator) ValidateWorkflowDocument(raw []byte) error {
	return validateRaw(v.workflowSchema, raw)
}

// validateRaw decodes JSON and runs it through a compiled schema
func validateRaw(schema *jsonschema.Schema, raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("document is not well-formed JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("document violates schema: %w", err)
	}
	return nil
}

// SchemaSource returns the raw embedded schema file for a document kind
func SchemaSource(kind string) ([]byte, error) {
	switch kind {
	case "plan":
		return schemaFS.ReadFile("schemas/plan.schema.yaml")
	case "workflow":
		return schemaFS.ReadFile("schemas/workflow.schema.yaml")
	default:
		return nil, fmt.Errorf("unknown schema %q (want plan or workflow)", kind)
	}
}

// loadSchema loads and compiles an embedded schema file (YAML)
func loadSchema(path string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for the schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schema, err := jsonschema.CompileString(path, string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}
