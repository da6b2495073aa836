// Package branch implements the branch-and-worktree predicate that decides,
// per step, whether the current branch/worktree context admits execution.
package branch

import (
	"strings"

	"github.com/gobwas/glob"
)

// globMeta are the gobwas/glob syntax characters beyond '*' and '?' -
// character classes and alternation groups - that spec-grammar branch
// patterns treat as plain literals instead.
const globMeta = "\\[]{},"

const worktreePrefix = "worktree:"

// ShouldRun decides whether a step with the given branch filter patterns
// should run against currentBranch, given whether we are inside a
// non-primary git worktree.
//
// Rules, applied in order:
//  1. No patterns -> true.
//  2. Partition into negations (leading '!') and positives.
//  3. Any negation matching -> false.
//  4. No positives -> true; else true iff any positive matches.
func ShouldRun(patterns []string, currentBranch string, inWorktree bool) bool {
	if len(patterns) == 0 {
		return true
	}

	var negations, positives []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			negations = append(negations, p[1:])
		} else {
			positives = append(positives, p)
		}
	}

	for _, n := range negations {
		if matchPattern(n, currentBranch, inWorktree) {
			return false
		}
	}

	if len(positives) == 0 {
		return true
	}

	for _, p := range positives {
		if matchPattern(p, currentBranch, inWorktree) {
			return true
		}
	}
	return false
}

// matchPattern matches a single (already-de-negated) pattern against the
// branch context.
func matchPattern(pattern, currentBranch string, inWorktree bool) bool {
	if rest, ok := cutPrefix(pattern, worktreePrefix); ok {
		if !inWorktree {
			return false
		}
		return MatchGlob(currentBranch, rest)
	}
	return MatchGlob(currentBranch, pattern)
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// MatchGlob performs an anchored full-string glob match: '*' matches any run
// of characters, '?' matches exactly one character, every other character
// (including '.', '[', ']', '{', '}', ',') is literal. gobwas/glob treats the
// bracket/brace/comma set as character-class and alternation syntax, so they
// are backslash-escaped before compiling - git ref names can legally contain
// them, and the grammar has no such meta-characters of its own.
func MatchGlob(s, pattern string) bool {
	g, err := glob.Compile(escapeGlobLiterals(pattern))
	if err != nil {
		// An unparsable pattern can never match.
		return false
	}
	return g.Match(s)
}

// escapeGlobLiterals backslash-escapes every gobwas/glob meta-character
// except '*' and '?', so the compiled glob's only special characters are the
// two the grammar documents.
func escapeGlobLiterals(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		if strings.ContainsRune(globMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
