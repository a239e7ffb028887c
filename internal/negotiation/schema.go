package negotiation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema.json
var documentSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile(documentSchema)
})

// ValidateDocument checks a raw negotiation_data document (for instance one
// imported from the legacy system) against the document schema and decodes it.
func ValidateDocument(raw []byte) (Data, error) {
	schema, err := compileSchema()
	if err != nil {
		return Data{}, fmt.Errorf("failed to compile negotiation schema: %w", err)
	}

	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Data{}, invalid("negotiation_data", "is not valid JSON: %v", err)
	}

	result := schema.Validate(instance)
	if !result.IsValid() {
		var messages []string
		for field, evalErr := range result.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(messages)
		return Data{}, invalid("negotiation_data", "%s", strings.Join(messages, "; "))
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, invalid("negotiation_data", "%v", err)
	}
	d.normalize()
	return d, nil
}
