package hunter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Defaults applied when a rule omits flags or the replacement template.
const (
	DefaultFlags        = "g"
	DefaultReplaceValue = "$1"
)

// flag modifiers, mirroring the classic regex flag letters:
// g = replace all occurrences, i = ignore case, m = multiline,
// u = unicode (a no-op here: patterns are always unicode-aware).
const validFlags = "gimu"

// NormalizeFlags validates a flag string and returns it sorted with
// duplicates removed. An empty input normalizes to DefaultFlags.
func NormalizeFlags(flags string) (string, error) {
	if flags == "" {
		return DefaultFlags, nil
	}
	seen := map[rune]bool{}
	for _, r := range flags {
		if !strings.ContainsRune(validFlags, r) {
			return "", fmt.Errorf("unknown flag %q (supported: %s)", string(r), validFlags)
		}
		seen[r] = true
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return strings.Join(out, ""), nil
}

// Validate normalizes the rule's flags and checks that Source compiles
// under them. Called at rule creation so evaluation never sees an
// invalid pattern.
func (r *ContentReplace) Validate() error {
	flags, err := NormalizeFlags(r.Flags)
	if err != nil {
		return err
	}
	r.Flags = flags
	if r.ReplaceValue == "" {
		r.ReplaceValue = DefaultReplaceValue
	}
	_, _, err = compileRule(*r)
	return err
}

// compileRule builds the regexp for a rule. The i and m flags become
// inline (?i) / (?m) groups; g is returned separately because it selects
// replace-all versus replace-first semantics.
func compileRule(r ContentReplace) (re *regexp.Regexp, global bool, err error) {
	var inline string
	for _, f := range r.Flags {
		switch f {
		case 'g':
			global = true
		case 'i':
			inline += "i"
		case 'm':
			inline += "m"
		case 'u':
			// RE2 patterns operate on UTF-8 already.
		}
	}
	expr := r.Source
	if inline != "" {
		expr = "(?" + inline + ")" + expr
	}
	re, err = regexp.Compile(expr)
	return re, global, err
}

// applyRule rewrites content with one compiled rule. Without the g flag
// only the first match is replaced.
func applyRule(content string, re *regexp.Regexp, global bool, template string) string {
	if global {
		return re.ReplaceAllString(content, template)
	}
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content
	}
	expanded := re.ExpandString(nil, template, content, loc)
	return content[:loc[0]] + string(expanded) + content[loc[1]:]
}

// Transform applies rules to content strictly in sequence: the output of
// rule i is the input of rule i+1. An empty rule list is the identity.
// A rule that fails to compile aborts with a *TransformError and the
// original content is discarded, never partially transformed output.
func Transform(content string, rules []ContentReplace) (string, error) {
	for _, r := range rules {
		if r.Flags == "" {
			r.Flags = DefaultFlags
		}
		re, global, err := compileRule(r)
		if err != nil {
			return "", &TransformError{Source: r.Source, Err: err}
		}
		template := r.ReplaceValue
		if template == "" {
			template = DefaultReplaceValue
		}
		content = applyRule(content, re, global, template)
	}
	return content, nil
}
