package translate

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	apperrors "github.com/artl-app/artl-service/internal/errors"
)

// supportedCodes are the target languages offered to users
var supportedCodes = []string{
	"af", "ar", "be", "bg", "bn", "ca", "cs", "cy", "da", "de",
	"el", "en", "eo", "es", "et", "fa", "fi", "fr", "ga", "gl",
	"gu", "he", "hi", "hr", "ht", "hu", "id", "is", "it", "ja",
	"ka", "kn", "ko", "lt", "lv", "mk", "mr", "ms", "mt", "nl",
	"no", "pl", "pt", "ro", "ru", "sk", "sl", "sq", "sv", "sw",
	"ta", "te", "th", "tl", "tr", "uk", "ur", "vi", "zh",
}

var (
	supportedTags = func() []language.Tag {
		tags := make([]language.Tag, 0, len(supportedCodes))
		for _, c := range supportedCodes {
			tags = append(tags, language.MustParse(c))
		}
		return tags
	}()
	matcher = language.NewMatcher(supportedTags)
)

// Language describes one supported language
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}

// ParseLanguage validates a BCP 47 code and maps it onto a supported
// language, e.g. "zh-CN" becomes "zh" and "en-US" becomes "en".
func ParseLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", apperrors.NewInvalidLanguageError(code, nil)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", apperrors.NewInvalidLanguageError(code, err)
	}

	_, index, confidence := matcher.Match(tag)
	if confidence < language.High {
		return "", apperrors.NewInvalidLanguageError(code, nil)
	}
	return supportedCodes[index], nil
}

// DisplayName returns the English name of a language code
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

// Languages lists every supported language sorted by English name
func Languages() []Language {
	out := make([]Language, 0, len(supportedTags))
	for i, tag := range supportedTags {
		out = append(out, Language{
			Code:       supportedCodes[i],
			Name:       display.English.Tags().Name(tag),
			NativeName: display.Self.Name(tag),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
