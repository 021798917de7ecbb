package translator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
)

var defaultPhrases = map[string]map[string]string{
	"en-pt": {
		"hello":        "olá",
		"world":        "mundo",
		"good morning": "bom dia",
		"thank you":    "obrigado",
		"please":       "por favor",
		"yes":          "sim",
		"no":           "não",
	},
	"pt-en": {
		"olá":       "hello",
		"mundo":     "world",
		"bom dia":   "good morning",
		"obrigado":  "thank you",
		"por favor": "please",
		"sim":       "yes",
		"não":       "no",
	},
	"en-es": {
		"hello":        "hola",
		"world":        "mundo",
		"good morning": "buenos días",
		"thank you":    "gracias",
		"please":       "por favor",
		"yes":          "sí",
		"no":           "no",
	},
}

// Dictionary is a phrase-table translator for local runs and demos.
// Unknown phrases come back tagged with the target language, e.g. "[ES] text".
type Dictionary struct {
	phrases map[string]map[string]string
	latency time.Duration
	logger  *slog.Logger
}

// DictionaryOption configures a Dictionary
type DictionaryOption func(*Dictionary)

// WithLatency makes every translation take at least d
func WithLatency(d time.Duration) DictionaryOption {
	return func(t *Dictionary) {
		t.latency = d
	}
}

// WithPhrases adds or replaces the phrase table for a source/target pair
func WithPhrases(sourceLanguage, targetLanguage string, phrases map[string]string) DictionaryOption {
	return func(t *Dictionary) {
		table := make(map[string]string, len(phrases))
		for k, v := range phrases {
			table[strings.ToLower(k)] = v
		}
		t.phrases[pairKey(sourceLanguage, targetLanguage)] = table
	}
}

// NewDictionary creates a Dictionary with the built-in en/pt/es phrases
func NewDictionary(logger *slog.Logger, opts ...DictionaryOption) *Dictionary {
	t := &Dictionary{
		phrases: make(map[string]map[string]string, len(defaultPhrases)),
		logger:  logger,
	}
	for pair, table := range defaultPhrases {
		t.phrases[pair] = table
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate looks text up in the phrase table for the language pair
func (t *Dictionary) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	if t.latency > 0 {
		timer := time.NewTimer(t.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	t.checkSourceLanguage(text, sourceLanguage)

	if table, ok := t.phrases[pairKey(sourceLanguage, targetLanguage)]; ok {
		if translated, ok := table[strings.ToLower(strings.TrimSpace(text))]; ok {
			return translated, nil
		}
	}

	return fmt.Sprintf("[%s] %s", strings.ToUpper(targetLanguage), text), nil
}

// checkSourceLanguage logs when the text reliably looks like another language than declared
func (t *Dictionary) checkSourceLanguage(text, sourceLanguage string) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return
	}

	detected := info.Lang.Iso6391()
	if detected == "" || strings.EqualFold(detected, sourceLanguage) {
		return
	}

	t.logger.Warn("Source text does not look like the declared language",
		slog.String("declared", sourceLanguage),
		slog.String("detected", detected),
		slog.Float64("confidence", info.Confidence),
	)
}

func pairKey(sourceLanguage, targetLanguage string) string {
	return strings.ToLower(sourceLanguage) + "-" + strings.ToLower(targetLanguage)
}
