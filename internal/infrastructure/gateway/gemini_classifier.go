package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/usecase"
)

var tracer = otel.Tracer("gateway")

const (
	defaultGeminiModel = "gemini-2.5-flash"
	maxClassifierInput = 8000
)

var classifierPrompts = map[domain.ContentKind]string{
	domain.KindArticle: "You moderate a developer community blog. Decide whether the following article is spam: " +
		"advertising, link farming, SEO bait, scams, or content unrelated to software development posted to promote a product or site. " +
		"Answer with exactly one word: SPAM or OK.",
	domain.KindComment: "You moderate comments on a developer community blog. Decide whether the following comment is spam: " +
		"advertising, phishing, link dropping, or generic praise whose purpose is to promote a site. " +
		"Answer with exactly one word: SPAM or OK.",
	domain.KindUser: "You moderate user profiles on a developer community. Decide whether the following profile exists to spam: " +
		"promoting services, casinos, loans, escorts, essay writing, or links unrelated to software development. " +
		"Answer with exactly one word: SPAM or OK.",
}

// generator is the part of genai.Models the classifier uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier asks Gemini whether one kind of content is spam.
// Verdicts are cached by content hash.
type GeminiClassifier struct {
	gen    generator
	model  string
	kind   domain.ContentKind
	prompt string
	cache  *cache.Cache
	logger *zap.Logger
}

func newGeminiClassifier(gen generator, model string, kind domain.ContentKind, verdicts *cache.Cache, logger *zap.Logger) *GeminiClassifier {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClassifier{
		gen:    gen,
		model:  model,
		kind:   kind,
		prompt: classifierPrompts[kind],
		cache:  verdicts,
		logger: logger.With(zap.String("module", "gemini_classifier"), zap.String("kind", string(kind))),
	}
}

// NewGeminiClassifiers builds one classifier per content kind sharing a
// client and verdict cache. Without an API key every classifier reports
// usecase.ErrClassifierUnavailable.
func NewGeminiClassifiers(ctx context.Context, apiKey, model string, cacheTTL time.Duration, logger *zap.Logger) (map[domain.ContentKind]usecase.ContentClassifier, error) {
	var gen generator
	if apiKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create genai client")
		}
		gen = client.Models
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	verdicts := cache.New(cacheTTL, 2*cacheTTL)

	classifiers := make(map[domain.ContentKind]usecase.ContentClassifier, len(classifierPrompts))
	for kind := range classifierPrompts {
		classifiers[kind] = newGeminiClassifier(gen, model, kind, verdicts, logger)
	}
	return classifiers, nil
}

func cacheKey(in usecase.ClassifierInput) string {
	return fmt.Sprintf("%s:%016x", in.Kind, xxh3.HashString(in.Title+"\x00"+in.Body))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (c *GeminiClassifier) IsSpam(ctx context.Context, in usecase.ClassifierInput) (bool, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GeminiClassifier.IsSpam")
	defer span.End()

	if c.gen == nil {
		return false, usecase.ErrClassifierUnavailable
	}

	key := cacheKey(in)
	if cached, found := c.cache.Get(key); found {
		return cached.(bool), nil
	}

	var text strings.Builder
	if in.Title != "" {
		text.WriteString("Title: ")
		text.WriteString(in.Title)
		text.WriteString("\n\n")
	}
	text.WriteString(truncate(in.Body, maxClassifierInput))

	resp, err := c.gen.GenerateContent(ctx, c.model, genai.Text(text.String()), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.prompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   8,
	})
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "gemini generate content")
	}

	verdict, ok := parseVerdict(resp.Text())
	if !ok {
		err := fmt.Errorf("unexpected classifier answer %q", resp.Text())
		span.RecordError(err)
		return false, err
	}

	c.cache.Set(key, verdict, cache.DefaultExpiration)
	c.logger.Debug("classified content", zap.Bool("spam", verdict))
	return verdict, nil
}

func parseVerdict(answer string) (bool, bool) {
	answer = strings.ToUpper(strings.Trim(strings.TrimSpace(answer), ".!\"'`"))
	switch {
	case strings.HasPrefix(answer, "SPAM"):
		return true, true
	case strings.HasPrefix(answer, "OK"), strings.HasPrefix(answer, "NOT SPAM"):
		return false, true
	default:
		return false, false
	}
}
