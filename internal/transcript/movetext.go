package transcript

import (
	"regexp"
	"strings"
)

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+`)

// MoveTokens returns the SAN tokens of a movetext in play order. Comments,
// variations, NAGs, move numbers, result tokens and trailing annotation
// glyphs (+ # ! ?) are removed.
func MoveTokens(movetext string) []string {
	cleaned := moveNumberRegex.ReplaceAllString(stripCommentary(movetext), " ")

	fields := strings.Fields(cleaned)
	tokens := fields[:0]
	for _, tok := range fields {
		if tok[0] == '$' || isResultToken(tok) {
			continue
		}
		tok = strings.TrimRight(tok, "+#!?")
		switch tok {
		case "":
			continue
		case "0-0":
			tok = "O-O"
		case "0-0-0":
			tok = "O-O-O"
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// stripCommentary drops {brace comments} and (variations), which may nest.
func stripCommentary(s string) string {
	if !strings.ContainsAny(s, "{(") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inComment := false
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inComment:
			if c == '}' {
				inComment = false
				b.WriteByte(' ')
			}
		case c == '{':
			inComment = true
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
				if depth == 0 {
					b.WriteByte(' ')
				}
			}
		case depth == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}
