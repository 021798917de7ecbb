// Package translator provides the translate function used by workers
package translator

import "context"

// Translator turns text from one language into another
type Translator interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}

// Func adapts a plain function to Translator
type Func func(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)

// Translate calls f
func (f Func) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	return f(ctx, text, sourceLanguage, targetLanguage)
}
