package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultStartPhrases arm the detector.
var DefaultStartPhrases = []string{"okay camera", "hey camera", "ok camera", "okey camera"}

// DefaultEndPhrases close an armed window. Order is match priority.
var DefaultEndPhrases = []string{
	"one two three",
	"one, two, three",
	"1 2 3",
	"123",
	"three two one",
	"3 2 1",
	"321",
}

const (
	phraseSeparators = `[\s,.;:!?-]*`
	phraseTrailer    = `[,.;:!?]*`
)

// phraseMatcher is not safe for concurrent use; the detector serializes access.
type phraseMatcher struct {
	caser cases.Caser

	start []string
	end   []string

	startPatterns []*regexp.Regexp
	endPatterns   map[string]*regexp.Regexp
}

func newPhraseMatcher(start []string, end []string) *phraseMatcher {
	m := &phraseMatcher{
		caser:       cases.Lower(language.Und),
		endPatterns: make(map[string]*regexp.Regexp),
	}
	m.start = m.normalizeSet(start)
	m.end = m.normalizeSet(end)

	for _, phrase := range m.start {
		m.startPatterns = append(m.startPatterns, compilePhrase(phrase))
	}
	for _, phrase := range m.end {
		m.endPatterns[phrase] = compilePhrase(phrase)
	}
	return m
}

func (m *phraseMatcher) normalize(text string) string {
	return strings.TrimSpace(m.caser.String(text))
}

func (m *phraseMatcher) normalizeSet(phrases []string) []string {
	normalized := lo.Map(phrases, func(phrase string, _ int) string {
		return m.normalize(phrase)
	})
	normalized = lo.Filter(normalized, func(phrase string, _ int) bool {
		return phrase != ""
	})
	return lo.Uniq(normalized)
}

func (m *phraseMatcher) matchStart(normalized string) (string, bool) {
	return firstContained(normalized, m.start)
}

func (m *phraseMatcher) matchEnd(normalized string) (string, bool) {
	return firstContained(normalized, m.end)
}

// strip removes every start phrase and the first occurrence of the matched end
// phrase, including punctuation the recognizer attached to them.
func (m *phraseMatcher) strip(window string, matchedEnd string) string {
	out := window
	for _, re := range m.startPatterns {
		out = re.ReplaceAllString(out, " ")
	}
	if re, ok := m.endPatterns[matchedEnd]; ok {
		if loc := re.FindStringIndex(out); loc != nil {
			out = out[:loc[0]] + " " + out[loc[1]:]
		}
	}
	out = strings.Join(strings.Fields(out), " ")
	return strings.Trim(out, " ,;:-")
}

func firstContained(text string, phrases []string) (string, bool) {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func compilePhrase(phrase string) *regexp.Regexp {
	tokens := strings.FieldsFunc(phrase, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	quoted := lo.Map(tokens, func(token string, _ int) string {
		return regexp.QuoteMeta(token)
	})
	return regexp.MustCompile("(?i)" + strings.Join(quoted, phraseSeparators) + phraseTrailer)
}
