// Package textrules implements the deterministic, order-dependent
// description-compaction rules applied to tool and schema descriptions
// (SPEC_FULL.md §4.4). The rule list and its ordering are the wire
// contract: a later rule sees the output of every earlier one.
package textrules

import "regexp"

type rule struct {
	pattern *regexp.Regexp
	replace string
}

func mustRule(pattern, replace string) rule {
	return rule{pattern: regexp.MustCompile(`(?i)` + pattern), replace: replace}
}

var rules = []rule{
	mustRule(`\bThis tool (?:will |can |is used to |enables (?:you|users|LLMs|AI assistants) to |allows (?:you|users|LLMs|AI assistants) to )`, ``),
	mustRule(`\bThis server (?:enables|allows|provides)\b`, ``),
	mustRule(`\bThis operation (?:will|can)\b`, ``),
	mustRule(`\bYou can use this (?:tool |to )\b`, ``),
	mustRule(`\bProvides? (?:the )?ability to\b`, ``),
	mustRule(`\bProvides? access to\b`, `Access`),
	mustRule(`\bGives? (?:you )?access to\b`, `Access`),
	mustRule(`\bmust be provided\b`, `required`),
	mustRule(`\bshould be provided\b`, `recommended`),
	mustRule(`\bcan be used (?:to |for )\b`, `for `),
	mustRule(`\bEnables you to\b`, ``),
	mustRule(`\bAllows you to\b`, ``),
	mustRule(`\bin order to\b`, `to`),
	mustRule(`\bas well as\b`, `and`),
	mustRule(`\bprior to\b`, `before`),
	mustRule(`\bwith respect to\b`, `for`),
	mustRule(`\bvery\b`, ``),
	mustRule(`\bsimply\b`, ``),
	mustRule(`\bbasically\b`, ``),
	mustRule(`\bessentially\b`, ``),
	mustRule(`\brepository\b`, `repo`),
	mustRule(`\bconfiguration\b`, `config`),
	mustRule(`\binformation\b`, `info`),
	mustRule(`\bdocumentation\b`, `docs`),
	mustRule(`\bapplication\b`, `app`),
	mustRule(`\bdatabase\b`, `DB`),
	mustRule(`\benvironment\b`, `env`),
	mustRule(`\bparameters\b`, `params`),
	mustRule(`\bparameter\b`, `param`),
	mustRule(`\bretrieve(?:s)?\b`, `get`),
	mustRule(`\bfetch(?:es)?\b`, `get`),
	mustRule(`\bexecute(?:s)?\b`, `run`),
	mustRule(`\bgenerate(?:s)?\b`, `create`),
	mustRule(`\bfor example\b`, `e.g.`),
	mustRule(`\bsuch as\b`, `like`),
	mustRule(`  +`, ` `),
	mustRule(` +([.,;:])`, `$1`),
	mustRule(`^\s+|\s+$`, ``),
}

var (
	dotRuns        = regexp.MustCompile(`\.+`)
	sentenceBoundary = regexp.MustCompile(`(\. )([a-z])`)
)

// minLength is the shortest description this compressor will touch.
const minLength = 20

// CompressDescription applies every rule in order to desc, then
// collapses repeated dots and re-capitalizes sentence starts. Strings
// shorter than minLength pass through unchanged.
func CompressDescription(desc string) string {
	if len(desc) < minLength {
		return desc
	}
	result := desc
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replace)
	}
	result = dotRuns.ReplaceAllString(result, ".")
	result = sentenceBoundary.ReplaceAllStringFunc(result, func(m string) string {
		groups := sentenceBoundary.FindStringSubmatch(m)
		return groups[1] + upperFirst(groups[2])
	})
	result = upperFirstString(result)
	return trimSpace(result)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 32
	}
	return string(r)
}

func upperFirstString(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 32
	}
	return string(r)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
