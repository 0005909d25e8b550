package ai

import (
	"errors"
	"fmt"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

var ErrInferenceTimeout = errors.New("ai inference timeout")

// ProviderError is a transport, HTTP or auth failure from a model provider.
// Provider packages construct it as models.ProviderError.
type ProviderError = models.ProviderError

// JSONParseError is returned when model output cannot be read as JSON by any
// extraction strategy.
type JSONParseError struct {
	Excerpt string
}

func (e *JSONParseError) Error() string {
	return fmt.Sprintf("model response is not valid JSON: %q", e.Excerpt)
}
