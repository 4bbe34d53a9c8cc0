// Package lexical centralises the full-text query sanitisation rules used by
// every store backend. Duplicating these rules per backend invites drift
// between what the sanitiser strips and what the backend's query engine
// treats as a reserved operator.
package lexical

import "strings"

var stripper = strings.NewReplacer(
	"*", " ",
	`"`, " ",
	"(", " ",
	")", " ",
)

var reservedOperators = map[string]bool{
	"AND":  true,
	"OR":   true,
	"NOT":  true,
	"NEAR": true,
}

// Sanitize turns free-text user input into a permissive OR-joined match
// expression safe to hand to a full-text query engine (SQLite FTS5 MATCH or
// a Postgres to_tsquery built from the same tokens).
//
// Rules: the characters * " ( ) are replaced with spaces, runs of whitespace
// collapse, tokens of length <= 1 are dropped, and the reserved operators
// AND/OR/NOT/NEAR are dropped (case-insensitively) since they would
// otherwise be parsed as query syntax rather than search terms. The
// remaining tokens are returned; callers join them with " OR " (or the
// backend-specific equivalent) themselves, so Sanitize can also report
// "no terms" via an empty (non-nil) slice.
func Sanitize(query string) []string {
	cleaned := stripper.Replace(query)
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if reservedOperators[strings.ToUpper(f)] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// MatchExpression joins sanitised tokens into an OR-joined expression
// suitable for SQLite FTS5's MATCH operator. Returns "" if there are no
// usable tokens; callers must treat that as "return no results", not "match
// everything".
func MatchExpression(query string) string {
	tokens := Sanitize(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// TSQuery joins sanitised tokens into an OR-joined to_tsquery expression
// suitable for Postgres. Returns "" if there are no usable tokens.
func TSQuery(query string) string {
	tokens := Sanitize(query)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, " | ")
}

// EntityNameTokens splits a query on whitespace for the loose entity-name
// substring match used by the graph recall signal. Tokens of length <= 2 are
// dropped.
func EntityNameTokens(query string) []string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
