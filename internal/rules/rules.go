package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// ErrUnstable is returned when rules keep rewriting the prompt past the
// iteration limit.
var ErrUnstable = errors.New("prompt rules did not settle")

const defaultIterationLimit = 30

var spaceRun = regexp.MustCompile(`\s+`)

type rule interface {
	apply(input string) (output string, changed bool)
}

// Set rewrites prompt text with deterministic substitutions. Supported lines:
//
//	from => to          whole-word, case-insensitive literal replacement
//	s/pattern/repl/gi   regular expression replacement (first match unless g)
//	!word               drop a whole word, e.g. a filler
//
// Blank lines and lines starting with # are ignored.
type Set struct {
	rules []rule
	limit int
}

// Load reads a rules file. A missing or unset path yields an empty set.
func Load(fs afero.Fs, path string, limit int) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return &Set{limit: normalizeLimit(limit)}, nil
	}
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Set{limit: normalizeLimit(limit)}, nil
		}
		return nil, fmt.Errorf("read prompt rules %q: %w", path, err)
	}
	set, err := Parse(string(contents), limit)
	if err != nil {
		return nil, fmt.Errorf("parse prompt rules %q: %w", path, err)
	}
	return set, nil
}

func Parse(contents string, limit int) (*Set, error) {
	set := &Set{limit: normalizeLimit(limit)}
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		set.rules = append(set.rules, parsed)
	}
	return set, nil
}

// Len reports the number of loaded rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// Apply rewrites text until no rule changes it.
func (s *Set) Apply(text string) (string, error) {
	if len(s.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < s.limit; i++ {
		changed := false
		for _, r := range s.rules {
			if next, ok := r.apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return collapseSpaces(result), nil
		}
	}
	return collapseSpaces(result), fmt.Errorf("%w after %d passes", ErrUnstable, s.limit)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultIterationLimit
	}
	return limit
}

func collapseSpaces(text string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

func parseLine(line string) (rule, error) {
	switch {
	case isRegexLine(line):
		return parseRegexRule(line)
	case strings.Contains(line, "=>"):
		return parseWordRule(line)
	case strings.HasPrefix(line, "!"):
		return parseDropRule(line)
	default:
		return nil, errors.New("unsupported rule format")
	}
}

type wordRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseWordRule(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("replacement source cannot be empty")
	}
	re, err := wordPattern(from)
	if err != nil {
		return nil, err
	}
	return wordRule{re: re, replacement: to}, nil
}

func parseDropRule(line string) (rule, error) {
	word := strings.TrimSpace(strings.TrimPrefix(line, "!"))
	if word == "" {
		return nil, errors.New("drop rule needs a word")
	}
	re, err := wordPattern(word)
	if err != nil {
		return nil, err
	}
	return wordRule{re: re}, nil
}

func wordPattern(word string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid word %q: %w", word, err)
	}
	return re, nil
}

func (r wordRule) apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func isRegexLine(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1])
}

func parseRegexRule(line string) (rule, error) {
	delim := line[1]
	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	// Case-insensitive by default; c turns it off.
	prefix, global := "i", false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 'c':
			prefix = strings.ReplaceAll(prefix, "i", "")
		case 'g':
			global = true
		case 's':
			prefix += "s"
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}
	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// readDelimited reads up to the next unescaped delim, keeping escapes intact.
func readDelimited(line string, start int, delim byte) (string, int, error) {
	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}
