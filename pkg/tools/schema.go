package tools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/invopop/jsonschema"
)

// CitationSource is implemented by tools whose output references documents
// which may be shown as citations.
type CitationSource interface {
	Citations(output string) []pub_models.SearchResult
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

var defaultHTTPClient HTTPDoer = &http.Client{Timeout: 10 * time.Second}

var reflector = jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
}

// schemaOf reflects the argument struct T into an InputSchema. Fields
// without omitempty are required.
func schemaOf[T any]() *pub_models.InputSchema {
	var zero T
	b, err := json.Marshal(reflector.Reflect(&zero))
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema of %T: %v", zero, err))
	}
	is, err := pub_models.InputSchemaFromRaw(b)
	if err != nil {
		panic(fmt.Sprintf("failed to convert schema of %T: %v", zero, err))
	}
	return &is
}

// decodeInput maps the loosely typed input onto the argument struct T.
func decodeInput[T any](input pub_models.Input) (T, error) {
	var ret T
	b, err := json.Marshal(input)
	if err != nil {
		return ret, fmt.Errorf("failed to marshal input: %w", err)
	}
	if err := json.Unmarshal(b, &ret); err != nil {
		return ret, fmt.Errorf("failed to decode input: %w", err)
	}
	return ret, nil
}
