package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
)

// Translator is the external translation collaborator
type Translator interface {
	// Translate returns text in the target language
	Translate(ctx context.Context, text, source, target string) (string, error)
	// EnsureModel makes the source->target model usable, downloading it if
	// the backend needs to.
	EnsureModel(ctx context.Context, source, target string) error
}

// Provider is a chat-style language model backend
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
	// CheckModel verifies the configured model exists, pulling it if needed
	CheckModel(ctx context.Context) error
}

// LLMTranslator translates by prompting a language model
type LLMTranslator struct {
	provider Provider
	timeout  time.Duration
	logger   *logging.Logger
}

// NewLLMTranslator creates a translator over provider
func NewLLMTranslator(provider Provider, logger *logging.Logger) *LLMTranslator {
	if logger == nil {
		logger = logging.NewLogger("Translate")
	}
	return &LLMTranslator{
		provider: provider,
		logger:   logger,
	}
}

// Provider returns the backing provider
func (t *LLMTranslator) Provider() Provider { return t.provider }

// SetTimeout bounds each completion call; 0 leaves it to the caller's ctx
func (t *LLMTranslator) SetTimeout(d time.Duration) { t.timeout = d }

// Translate implements Translator
func (t *LLMTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	startTime := time.Now()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	response, err := t.provider.Complete(ctx, buildSystemPrompt(source, target), text)
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", t.provider.Name(), err)
	}

	t.logger.Debug("translated",
		"provider", t.provider.Name(),
		"source", source,
		"target", target,
		"chars", len(text),
		"duration", time.Since(startTime).Round(time.Millisecond))

	return cleanResponse(response), nil
}

// EnsureModel implements Translator
func (t *LLMTranslator) EnsureModel(ctx context.Context, source, target string) error {
	if _, err := ParseLanguage(source); err != nil {
		return err
	}
	if _, err := ParseLanguage(target); err != nil {
		return err
	}
	if err := t.provider.CheckModel(ctx); err != nil {
		return fmt.Errorf("%s model unavailable: %w", t.provider.Name(), err)
	}
	return nil
}

func buildSystemPrompt(source, target string) string {
	return fmt.Sprintf(`You are a translation engine. Translate the user's text from %s to %s.

Rules:
- Output ONLY the translation, no quotes, notes or explanations
- Keep numbers, names and punctuation as they are
- If the text is already in %s, return it unchanged
- The text comes from OCR and may contain recognition errors; translate the most likely intended text`,
		DisplayName(source), DisplayName(target), DisplayName(target))
}

// cleanResponse removes markdown fences and wrapping quotes some models add
func cleanResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	backticks := "```"
	if strings.HasPrefix(cleaned, backticks) {
		cleaned = strings.TrimPrefix(cleaned, backticks)
		if i := strings.IndexByte(cleaned, '\n'); i >= 0 && !strings.Contains(cleaned[:i], " ") {
			cleaned = cleaned[i+1:]
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), backticks)
		cleaned = strings.TrimSpace(cleaned)
	}
	if len(cleaned) >= 2 {
		first, last := cleaned[0], cleaned[len(cleaned)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
		}
	}
	return cleaned
}

// NewProvider creates the provider selected by cfg.Provider
func NewProvider(ctx context.Context, cfg models.TranslationConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil

	case "gemini":
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)

	case "ollama":
		return NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model), nil

	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", cfg.Provider)
	}
}
