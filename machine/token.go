package machine

import "strings"

// SourceLine is one surviving line of preprocessed assembly: an uppercased,
// space/comma-split token list for directive and mnemonic matching, plus
// the original (case-preserved, comment-stripped, trimmed) text for
// recovering quoted string literals in DB/DW/DD.
type SourceLine struct {
	Tokens []string
	Origin string
	LineNo int
}

// Preprocess strips comments, drops empty lines, replaces the '?'
// uninitialized-data placeholder with '0' in the token stream, and splits
// each surviving line into tokens — the assembler's phase 1, ported from
// original_source/emulator/assembler.py's __preprocessing.
func Preprocess(source string) []SourceLine {
	rawLines := strings.Split(source, "\n")
	out := make([]SourceLine, 0, len(rawLines))
	for i, raw := range rawLines {
		line := raw
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		origin := line
		upper := strings.ToUpper(line)
		upper = strings.ReplaceAll(upper, "?", "0")
		toks := tokenizeLine(upper)
		if len(toks) == 0 {
			continue
		}
		out = append(out, SourceLine{Tokens: toks, Origin: origin, LineNo: i + 1})
	}
	return out
}

// tokenizeLine splits on runs of spaces and commas, matching the source's
// re.split(" |,").
func tokenizeLine(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	return fields
}

// afterKeyword returns the text of origin following the first case-insensitive,
// word-boundary-delimited occurrence of keyword, or "" if not found. Used to
// recover the literal (case-preserving, comma-containing) operand text of a
// DB/DW/DD line, which naive token splitting would mangle.
func afterKeyword(origin, keyword string) string {
	up := strings.ToUpper(origin)
	kw := strings.ToUpper(keyword)
	searchFrom := 0
	for {
		rel := strings.Index(up[searchFrom:], kw)
		if rel < 0 {
			return ""
		}
		idx := searchFrom + rel
		end := idx + len(kw)
		startOK := idx == 0 || !isIdentChar(up[idx-1])
		endOK := end >= len(up) || !isIdentChar(up[end])
		if startOK && endOK {
			return origin[end:]
		}
		searchFrom = idx + 1
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// splitDataTerms splits a DB/DW/DD operand list on top-level commas,
// treating single- or double-quoted substrings as atomic so that embedded
// commas inside string literals are not mistaken for term separators.
func splitDataTerms(s string) []string {
	var out []string
	var cur strings.Builder
	var inQuote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			cur.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
			cur.WriteByte(c)
		case ',':
			if t := strings.TrimSpace(cur.String()); t != "" {
				out = append(out, t)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if t := strings.TrimSpace(cur.String()); t != "" {
		out = append(out, t)
	}
	return out
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}

// parseDup recognizes "N DUP(EXPR)" and returns the repeat count and EXPR.
func parseDup(term string) (int, string, bool) {
	up := strings.ToUpper(term)
	idx := strings.Index(up, "DUP(")
	if idx < 0 || !strings.HasSuffix(term, ")") {
		return 0, "", false
	}
	countStr := strings.TrimSpace(term[:idx])
	inner := term[idx+4 : len(term)-1]
	n, err := ParseNumericLiteral(countStr)
	if err != nil {
		return 0, "", false
	}
	return int(n), inner, true
}
