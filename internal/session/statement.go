package session

import (
	"strings"
	"unicode"
)

// NoRowCount is what Execute returns for statements that do not report
// affected rows (DDL, SET, CALL, ...). It never collides with a real
// count, which is always >= 0.
const NoRowCount int64 = -1

// countingVerbs are the statements whose affected-row count is reported.
var countingVerbs = map[string]bool{
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
	"LOAD":    true,
}

// reportsRowCount tells whether sql is a data-modifying statement.
// A leading WITH clause is looked through to the statement it prefixes.
func reportsRowCount(sql string) bool {
	words := keywords(sql)
	if len(words) == 0 {
		return false
	}
	if words[0] != "WITH" {
		return countingVerbs[words[0]]
	}
	for _, w := range words[1:] {
		if w == "UPDATE" || w == "DELETE" {
			return true
		}
	}
	return false
}

// keywords returns the upper-cased bare words of sql, skipping comments,
// quoted text and punctuation.
func keywords(sql string) []string {
	var (
		words []string
		word  strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-', r == '#':
			flush()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			flush()
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case r == '\'' || r == '"' || r == '`':
			flush()
			for i++; i < len(runes) && runes[i] != r; i++ {
				if runes[i] == '\\' {
					i++
				}
			}
		case unicode.IsLetter(r) || r == '_':
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return words
}
