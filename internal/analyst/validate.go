package analyst

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	llmclient "prsentry/internal/llmClient"
	"prsentry/internal/redact"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseOutput decodes a raw model response. A malformed body is a
// transient failure: the same prompt often yields valid JSON on retry.
func ParseOutput(raw json.RawMessage) (*Output, error) {
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", llmclient.ErrInvalidJSON, err)
	}
	return &out, nil
}

// CheckOutput enforces the schema and refuses any output that still
// carries a secret-shaped value. Failures are permanent: the input is
// not going to change, so retrying would just burn quota.
func CheckOutput(out *Output) error {
	if err := validate.Struct(out); err != nil {
		return llmclient.NewPermanentError(fmt.Errorf("ai output validation failed: %w", err))
	}

	marshaled, err := json.Marshal(out)
	if err != nil {
		return llmclient.NewPermanentError(fmt.Errorf("ai output not serializable: %w", err))
	}
	if redact.ContainsSecret(string(marshaled)) {
		return llmclient.NewPermanentError(fmt.Errorf("ai output validation failed: contains secret-like content"))
	}
	return nil
}
