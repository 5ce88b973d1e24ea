package intent

import (
	"strings"
	"unicode"

	"github.com/thebtf/tabletalk/pkg/models"
)

// Span is one contiguous run of text in a single script.
type Span struct {
	Text string
	Lang models.Language
}

// romanizedBengali lists transliterated Bengali words that appear in
// otherwise-Latin text. Their presence marks an utterance as mixed.
var romanizedBengali = map[string]bool{
	"ajk": true, "gotokal": true, "kal": true, "khoroch": true,
	"taka": true, "banao": true, "dekhao": true, "jog": true,
	"bodlao": true, "mucho": true, "mas": true, "bocor": true,
	"din": true, "ay": true, "bishleshon": true,
}

// Normalize lowercases and trims the query and tags its language spans.
// Classification downstream operates on the normalized text only.
func Normalize(text string) (string, []Span, models.Language) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", nil, models.LangEnglish
	}

	spans := splitSpans(normalized)

	hasBengali := false
	hasEnglish := false
	for _, sp := range spans {
		switch sp.Lang {
		case models.LangBengali:
			hasBengali = true
		case models.LangEnglish:
			hasEnglish = true
		}
	}
	for _, word := range strings.Fields(normalized) {
		if romanizedBengali[strings.Trim(word, ".,!?")] {
			hasBengali = true
		}
	}

	lang := models.LangEnglish
	switch {
	case hasBengali && hasEnglish:
		lang = models.LangMixed
	case hasBengali:
		lang = models.LangBengali
	}
	return normalized, spans, lang
}

// splitSpans breaks text into runs of Bengali script vs everything else.
func splitSpans(text string) []Span {
	var spans []Span
	var current strings.Builder
	currentLang := models.Language("")

	flush := func() {
		if current.Len() > 0 {
			spans = append(spans, Span{Text: current.String(), Lang: currentLang})
			current.Reset()
		}
	}

	for _, r := range text {
		lang := runeLang(r)
		if lang == "" {
			// Whitespace and punctuation attach to the current span.
			if current.Len() > 0 {
				current.WriteRune(r)
			}
			continue
		}
		if lang != currentLang {
			flush()
			currentLang = lang
		}
		current.WriteRune(r)
	}
	flush()
	return spans
}

func runeLang(r rune) models.Language {
	if unicode.Is(unicode.Bengali, r) {
		return models.LangBengali
	}
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return models.LangEnglish
	}
	return ""
}
