package ai

import (
	"context"
	"fmt"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai/anthropic"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai/gemini"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/ai/openai"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/config"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// NewProvider constructs the appropriate language model provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return openai.NewProvider("ollama", cfg.Ollama), nil
	case "vllm":
		return openai.NewProvider("vllm", cfg.VLLM), nil
	case "openai":
		return openai.NewProvider("openai", cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini, "")
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic, gemini", cfg.Provider)
	}
}
