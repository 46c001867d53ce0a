package cms

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Body schemas. The lenient one only requires a list; the strict one also
// requires every block to be an object carrying a string "type".
const (
	lenientBodySchema = `{"type": "array"}`
	strictBodySchema  = `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["type"],
			"properties": {"type": {"type": "string", "minLength": 1}}
		}
	}`
)

var (
	lenientBody = jsonschema.MustCompileString("body-lenient.json", lenientBodySchema)
	strictBody  = jsonschema.MustCompileString("body-strict.json", strictBodySchema)

	emptyBody = json.RawMessage("[]")
)

// ErrBodyNotList is returned when a blog body is not a JSON array.
var ErrBodyNotList = errors.New("Body must be a list of blocks.")

// BodyValidator checks blog bodies against the block schema.
type BodyValidator struct {
	schema *jsonschema.Schema
	strict bool
}

// NewBodyValidator returns a validator. In strict mode every block must be an
// object with a non-empty string "type".
func NewBodyValidator(strict bool) *BodyValidator {
	if strict {
		return &BodyValidator{schema: strictBody, strict: true}
	}
	return &BodyValidator{schema: lenientBody}
}

// Validate returns nil when raw is a JSON array accepted by the schema.
func (v *BodyValidator) Validate(raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrBodyNotList
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return ErrBodyNotList
	}
	if _, ok := doc.([]interface{}); !ok {
		return ErrBodyNotList
	}
	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if v.strict && errors.As(err, &verr) {
			return errors.New("Each block must be an object with a string \"type\".")
		}
		return ErrBodyNotList
	}
	return nil
}

// normalizeBody returns a compact copy of raw, or [] when raw is empty or null.
func normalizeBody(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return append(json.RawMessage(nil), emptyBody...)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return append(json.RawMessage(nil), trimmed...)
	}
	return json.RawMessage(buf.Bytes())
}
