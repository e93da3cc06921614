package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// DetermineLocale resolves a locale from an explicit query param, then the
// Accept-Language header, then def. Supported values are base tags like "fr",
// "en"; the result is always one of them.
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	if len(supported) == 0 {
		return strings.ToLower(def)
	}
	def = strings.ToLower(def)
	names := make([]string, 0, len(supported))
	for _, s := range supported {
		if strings.ToLower(s) == def {
			names = append([]string{def}, names...)
			continue
		}
		names = append(names, strings.ToLower(s))
	}
	tags := make([]language.Tag, len(names))
	for i, n := range names {
		tags[i] = language.Make(n)
	}
	m := language.NewMatcher(tags)

	pick := func(desired ...language.Tag) (string, bool) {
		if len(desired) == 0 {
			return "", false
		}
		_, idx, conf := m.Match(desired...)
		if conf == language.No {
			return "", false
		}
		return names[idx], true
	}

	if queryLang != "" {
		if t, err := language.Parse(queryLang); err == nil {
			if v, ok := pick(t); ok {
				return v
			}
		}
	}
	if desired, _, err := language.ParseAcceptLanguage(acceptLang); err == nil {
		if v, ok := pick(desired...); ok {
			return v
		}
	}
	return names[0]
}
