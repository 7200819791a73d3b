package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestSetAppliesAllRuleKinds(t *testing.T) {
	t.Parallel()

	set, err := Parse(strings.Join([]string{
		"# speech fixes",
		"sunglass => sunglasses",
		"s/\\bpurple (\\w+)/violet $1/",
		"!um",
		"",
	}, "\n"), 0)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", set.Len())
	}

	got, err := set.Apply("um give me Sunglass and a purple hat um")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got != "give me sunglasses and a violet hat" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestWordRuleMatchesWholeWordsOnly(t *testing.T) {
	t.Parallel()

	set, err := Parse("cat => dog", 0)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got, _ := set.Apply("a cat on a catamaran")
	if got != "a dog on a catamaran" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRegexRuleFlags(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		rule  string
		input string
		want  string
	}{
		{name: "first match only", rule: "s/red/blue/", input: "red red", want: "blue red"},
		{name: "global", rule: "s/red/blue/g", input: "red red", want: "blue blue"},
		{name: "case sensitive", rule: "s/Red/blue/c", input: "red Red", want: "red blue"},
		{name: "custom delimiter", rule: "s#a/b#c#", input: "a/b", want: "c"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			set, err := Parse(tc.rule, 1)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			got, _ := set.Apply(tc.input)
			if got != tc.want {
				t.Fatalf("unexpected output: %q", got)
			}
		})
	}
}

func TestSetReportsUnstableRules(t *testing.T) {
	t.Parallel()

	set, err := Parse("hat => top hat", 3)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := set.Apply("a hat"); !errors.Is(err, ErrUnstable) {
		t.Fatalf("expected ErrUnstable, got %v", err)
	}
}

func TestParseRejectsBadLines(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"just words", " => empty", "s/open", "s/a/b/z", "!", "s/(/x/"} {
		if _, err := Parse(line, 0); err == nil {
			t.Fatalf("expected parse error for %q", line)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/snapword/rules.txt", []byte("okay => ok\n"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	set, err := Load(fs, "/etc/snapword/rules.txt", 0)
	if err != nil || set.Len() != 1 {
		t.Fatalf("unexpected load: %v", err)
	}

	missing, err := Load(fs, "/nope.txt", 0)
	if err != nil || missing.Len() != 0 {
		t.Fatalf("expected empty set for missing file, got %v", err)
	}
	if got, _ := missing.Apply("unchanged  text"); got != "unchanged  text" {
		t.Fatalf("empty set must not touch text, got %q", got)
	}

	if err := afero.WriteFile(fs, "/bad.txt", []byte("???\n"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := Load(fs, "/bad.txt", 0); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
}
