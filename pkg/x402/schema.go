package x402

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/x402labs/x402-go/pkg/types"
)

// ValidateOutputSchema checks a paid response body against the outputSchema
// advertised in the payment requirements. Requirements without a schema
// validate trivially.
func ValidateOutputSchema(requirements *types.PaymentRequirements, body []byte) error {
	if requirements.OutputSchema == nil {
		return nil
	}

	schema := gojsonschema.NewBytesLoader(*requirements.OutputSchema)
	document := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return fmt.Errorf("output schema validation: %w", err)
	}

	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("response does not match output schema: %s", strings.Join(reasons, "; "))
	}

	return nil
}
