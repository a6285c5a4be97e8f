package text

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Language is one of the supported display languages. The set is closed;
// ParseLanguage rejects everything else.
type Language string

const (
	German    Language = "de"
	English   Language = "en"
	Turkish   Language = "tr"
	Bulgarian Language = "bg"
	Polish    Language = "pl"
	Romanian  Language = "ro"
	Ukrainian Language = "uk"
)

type languageInfo struct {
	tag      language.Tag
	date     string
	dateTime string
}

var languages = map[Language]languageInfo{
	German:    {tag: language.German, date: "02.01.2006", dateTime: "02.01.2006, 15:04"},
	English:   {tag: language.English, date: "2006-01-02", dateTime: "2006-01-02, 15:04"},
	Turkish:   {tag: language.Turkish, date: "02.01.2006", dateTime: "02.01.2006 15:04"},
	Bulgarian: {tag: language.Bulgarian, date: "02.01.2006", dateTime: "02.01.2006, 15:04"},
	Polish:    {tag: language.Polish, date: "02.01.2006", dateTime: "02.01.2006, 15:04"},
	Romanian:  {tag: language.Romanian, date: "02.01.2006", dateTime: "02.01.2006, 15:04"},
	Ukrainian: {tag: language.Ukrainian, date: "02.01.2006", dateTime: "02.01.2006, 15:04"},
}

// ParseLanguage accepts a BCP 47 code and maps it to its base language,
// so "de-DE" and "DE" both resolve to German.
func ParseLanguage(code string) (Language, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	base, _ := tag.Base()
	l := Language(base.String())
	if _, ok := languages[l]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return l, nil
}

// Languages lists the supported languages in sorted order.
func Languages() []Language {
	out := make([]Language, 0, len(languages))
	for l := range languages {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l Language) info() languageInfo { return languages[l] }
