package classifier

import (
	"fmt"

	"github.com/lucasmonteiro/triageflow/internal/config"
)

// New constructs the configured classifier provider.
// Called once at server startup.
func New(cfg config.ClassifierConfig) (Classifier, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg.Gemini), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q: must be one of gemini, mock", cfg.Provider)
	}
}
