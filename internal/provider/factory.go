package provider

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/pharmabot/internal/rag"
)

// constructors builds a chat model per backend.
var constructors = map[Backend]func(context.Context, *Config) (model.BaseChatModel, error){
	BackendOllama: newOllama,
	BackendOpenAI: newOpenAI,
	BackendAzure:  newAzure,
	BackendGemini: newGemini,
	BackendArk:    newArk,
}

// ConfigFromEnv reads the chat model configuration.
//
//	MODEL_PROVIDER     ollama | openai | azure | gemini | ark   (default ollama)
//	MODEL_MAX_TOKENS   default 1024
//	MODEL_TEMPERATURE  default 0.2
//
//	ollama  OLLAMA_HOST (http://localhost:11434), OLLAMA_MODEL (llama3)
//	openai  OPENAI_API_KEY, OPENAI_MODEL (gpt-4o-mini), OPENAI_BASE_URL
//	azure   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	        AZURE_OPENAI_API_VERSION (2024-02-01)
//	gemini  GOOGLE_API_KEY, GEMINI_MODEL (gemini-1.5-flash)
//	ark     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
func ConfigFromEnv() *Config {
	env := os.Getenv
	return &Config{
		Backend: Backend(strings.ToLower(envOr("MODEL_PROVIDER", string(BackendOllama)))),
		Ollama: ProviderOllama{
			Host:  envOr("OLLAMA_HOST", "http://localhost:11434"),
			Model: envOr("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  env("OPENAI_API_KEY"),
			Model:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: env("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     env("AZURE_OPENAI_API_KEY"),
			Endpoint:   env("AZURE_OPENAI_ENDPOINT"),
			Deployment: env("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: envOr("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Gemini: ProviderGemini{
			APIKey: env("GOOGLE_API_KEY"),
			Model:  envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Ark: ProviderArk{
			APIKey:  env("ARK_API_KEY"),
			Model:   env("ARK_MODEL"),
			BaseURL: env("ARK_BASE_URL"),
		},
		Tuning: SharedTuning{
			MaxTokens:   envNumber("MODEL_MAX_TOKENS", 1024, strconv.Atoi),
			Temperature: envNumber("MODEL_TEMPERATURE", 0.2, parseFloat32),
		},
	}
}

// New validates cfg and builds its chat model, so credential problems are
// reported at startup.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	build, ok := constructors[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("provider: %w: no constructor for %q", rag.ErrConfig, cfg.Backend)
	}
	m, err := build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: %w", cfg.Backend, err)
	}
	return m, nil
}

func envOr(key, fallback string) string {
	return cmp.Or(os.Getenv(key), fallback)
}

// envNumber parses key with parse, keeping fallback when unset or malformed.
func envNumber[T any](key string, fallback T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := parse(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}
