package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/link-catalog-v1.json
var linkCatalogSchemaJSON string

//go:embed schema/register-profile-v1.json
var registerProfileSchemaJSON string

type Validator struct {
	catalog *jsonschema.Schema
	profile *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	catalog, err := compileSchema("link-catalog-v1.json", linkCatalogSchemaJSON)
	if err != nil {
		return nil, err
	}
	profile, err := compileSchema("register-profile-v1.json", registerProfileSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Validator{catalog: catalog, profile: profile}, nil
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return schema, nil
}

// ValidateCatalog checks a YAML or JSON link catalog.
func (v *Validator) ValidateCatalog(data []byte) error {
	return validate(v.catalog, data)
}

// ValidateProfile checks a YAML or JSON register profile.
func (v *Validator) ValidateProfile(data []byte) error {
	return validate(v.profile, data)
}

// validate decodes YAML (a superset of JSON) and checks the JSON form of
// the document.
func validate(schema *jsonschema.Schema, data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("document is not representable as JSON: %w", err)
	}
	var value any
	if err := json.Unmarshal(doc, &value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
