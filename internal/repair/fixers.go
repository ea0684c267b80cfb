package repair

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdefABCDEF"

// escapeStrings rewrites the inside of every JSON string so that raw control
// characters become escapes and backslashes that do not start a valid JSON
// escape (LaTeX commands such as \alpha, \sum) become literal backslashes.
// Text outside strings is copied untouched.
func escapeStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/16)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\\':
			if i+1 < len(s) && validEscape(s, i+1) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xF])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// validEscape reports whether s[i] is the character after a backslash that
// forms a legal JSON escape.
func validEscape(s string, i int) bool {
	switch s[i] {
	case '"', '\\', '/':
		return true
	case 'b', 'f', 'n', 'r', 't':
		// Followed by a letter these are LaTeX commands (\frac, \beta, \neq,
		// \rightarrow, \times), not control characters.
		return i+1 >= len(s) || !isLetter(s[i+1])
	case 'u':
		if i+4 >= len(s) {
			return false
		}
		for j := i + 1; j <= i+4; j++ {
			if !strings.ContainsRune(hexDigits, rune(s[j])) {
				return false
			}
		}
		return true
	}
	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var (
	doubleEscapedUnicode = regexp.MustCompile(`\\\\(u[0-9a-fA-F]{4})`)
	smartQuotes          = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'",
	)
)

// normalizeUnicode undoes double escaped \uXXXX sequences, replaces curly
// quotes the model sometimes uses as delimiters and drops a BOM, NUL bytes
// and invalid UTF-8.
func normalizeUnicode(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = doubleEscapedUnicode.ReplaceAllString(s, `\$1`)
	return smartQuotes.Replace(s)
}

var (
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	singleQuoted  = regexp.MustCompile(`([{\[,:]\s*)'((?:[^'\\]|\\.)*)'`)
	stringField   = regexp.MustCompile(`^(\s*"(?:question|explanation)"\s*:\s*")(.*)("\s*,?\s*)$`)
	optionLine    = regexp.MustCompile(`^(\s*")(.*)("\s*,?\s*)$`)
	unescapedDQ   = regexp.MustCompile(`(^|[^\\])"`)
)

// heuristicFix is the last resort: cut to the outermost object, quote bare
// and single-quoted keys and values, drop trailing commas and escape stray
// double quotes inside one-line string values.
func heuristicFix(s string) string {
	s = outermost(s)
	s = singleQuoted.ReplaceAllStringFunc(s, func(m string) string {
		sub := singleQuoted.FindStringSubmatch(m)
		inner := strings.ReplaceAll(sub[2], `"`, `\"`)
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		return sub[1] + `"` + inner + `"`
	})
	s = bareKey.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingComma.ReplaceAllString(s, `$1`)

	lines := strings.Split(s, "\n")
	inOptions := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, `"options"`) {
			inOptions = !strings.Contains(trimmed, "]")
			continue
		}
		if inOptions {
			if strings.HasPrefix(trimmed, "]") {
				inOptions = false
				continue
			}
			if m := optionLine.FindStringSubmatch(line); m != nil {
				lines[i] = m[1] + escapeQuotes(m[2]) + m[3]
			}
			continue
		}
		if m := stringField.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + escapeQuotes(m[2]) + m[3]
		}
	}
	return strings.Join(lines, "\n")
}

func escapeQuotes(s string) string {
	// Applied twice because the pattern consumes the preceding character,
	// which hides back-to-back quotes from a single pass.
	for i := 0; i < 2; i++ {
		s = unescapedDQ.ReplaceAllString(s, `$1\"`)
	}
	return s
}

// outermost returns the text between the first '{' and the last '}', or the
// input when there is no such pair.
func outermost(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
