package interpret

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// outputSchema is sent to the provider as a structured-output constraint and
// used locally to accept or reject its reply.
const outputSchema = `{
  "type": "object",
  "properties": {
    "place": {"type": ["string", "null"]},
    "tag": {
      "type": "object",
      "properties": {
        "key": {"type": "string", "minLength": 1},
        "value": {"type": "string", "minLength": 1}
      },
      "required": ["key", "value"]
    },
    "confidence": {"type": "number"},
    "explanation": {"type": "string"}
  },
  "required": ["tag", "confidence"]
}`

var compiledSchema = mustCompile(outputSchema)

func mustCompile(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("interpret: compile output schema: %v", err))
	}
	return schema
}

// validate reports why doc does not satisfy the output schema, or nil.
func validate(doc []byte) error {
	res, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("not json: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema: %s", strings.Join(msgs, "; "))
}
