package ai

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultModel is the Gemini model used for categorization
const DefaultModel = "gemini-2.5-flash"

// ErrInvalidConfig is returned by NewGeminiClassifier for unusable settings.
var ErrInvalidConfig = errors.New("gemini: invalid configuration")

// GeminiConfig holds credentials and retry behavior for the Gemini API
type GeminiConfig struct {
	APIKey string `validate:"required"`
	Model  string `validate:"required"`
	// Timeout bounds one attempt, 0 leaves it to the caller's context
	Timeout    time.Duration `validate:"gte=0"`
	MaxRetries int           `validate:"gte=0,lte=10"`
	// RetryInitialInterval is the first backoff delay, 1s when zero
	RetryInitialInterval time.Duration `validate:"gte=0"`
}

// NewGeminiConfig returns a configuration with defaults for apiKey
func NewGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:     apiKey,
		Model:      DefaultModel,
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c GeminiConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
