// Package codeowners extracts owner identifiers from CODEOWNERS content.
//
// The parser is permissive: it never fails. Lines it cannot make sense of
// contribute no owners, so a malformed file degrades to a lower count instead
// of an error.
package codeowners

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// handleRe finds @login and @org/team-slug handles inside an owner token. The
// '@' must not follow an e-mail local part, so addresses are not owners.
var handleRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9._%+-])(@[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})(?:/[A-Za-z0-9_.-]+)?)`)

// Set is a deduplicated collection of owner identifiers.
type Set map[string]struct{}

func (s Set) Len() int { return len(s) }

func (s Set) Has(owner string) bool {
	_, ok := s[strings.ToLower(owner)]
	return ok
}

// Sorted returns the identifiers in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for o := range s {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Rule is one pattern line of a CODEOWNERS file.
type Rule struct {
	Line    int
	Pattern string
	Owners  []string
}

// ExtractOwners returns the distinct owners named anywhere in raw.
// Identifiers are compared case-insensitively and stored lowercased.
func ExtractOwners(raw []byte) Set {
	owners := make(Set)
	for _, r := range ParseRules(raw) {
		for _, o := range r.Owners {
			owners[o] = struct{}{}
		}
	}
	return owners
}

// ParseRules returns the rules of raw in file order. Owners in each rule are
// the recognised identifiers only; a rule may have none.
func ParseRules(raw []byte) []Rule {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var rules []Rule
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		tokens := tokenize(sc.Text())
		if len(tokens) == 0 {
			continue
		}
		rule := Rule{Line: lineNo, Pattern: tokens[0]}
		for _, tok := range tokens[1:] {
			rule.Owners = append(rule.Owners, handles(tok)...)
		}
		rules = append(rules, rule)
	}
	return rules
}

// handles returns the lowercased handles in tok, so "@alice," and
// "@alice,@bob" still name their owners.
func handles(tok string) []string {
	var out []string
	for _, m := range handleRe.FindAllStringSubmatch(tok, -1) {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// tokenize splits a line on unescaped whitespace and drops everything from an
// unescaped '#' that starts a token. A backslash escapes the next rune.
func tokenize(line string) []string {
	line = strings.TrimRight(line, "\r")

	var (
		tokens  []string
		cur     strings.Builder
		escaped bool
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case unicode.IsSpace(r):
			flush()
		case r == '#' && cur.Len() == 0:
			return tokens
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
