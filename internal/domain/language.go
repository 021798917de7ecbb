package domain

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// SupportedLanguages is the fixed allow-list of ISO 639-1 codes accepted for translation
var SupportedLanguages = []string{
	"en", "pt", "es", "fr", "de", "it", "ja", "ko", "zh",
	"ru", "ar", "hi", "tr", "nl", "sv", "da", "no", "fi",
}

// Language describes one supported language
type Language struct {
	Code string
	Name string
}

// IsSupportedLanguage reports whether code is in the allow-list
func IsSupportedLanguage(code string) bool {
	for _, supported := range SupportedLanguages {
		if code == supported {
			return true
		}
	}
	return false
}

// LanguageName returns the English display name for a language code
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// ListLanguages returns every supported language with its display name
func ListLanguages() []Language {
	languages := make([]Language, len(SupportedLanguages))
	for i, code := range SupportedLanguages {
		languages[i] = Language{Code: code, Name: LanguageName(code)}
	}
	return languages
}
