package machine

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseNumericLiteral parses an 8086-style integer literal: a leading 0x/0X
// hex prefix, or a trailing radix suffix B (binary) / O (octal) / D (decimal)
// / H (hex); unsuffixed tokens are decimal. Parsing is case-insensitive; the
// token is uppercased before radix inspection, matching the source
// assembler's to_decimal().
func ParseNumericLiteral(tok string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(tok))
	if s == "" {
		return 0, errors.Wrap(ErrBadOperand, "empty numeric literal")
	}

	if strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrBadOperand, "invalid hex literal %q", tok)
		}
		return v, nil
	}

	last := s[len(s)-1]
	body := s[:len(s)-1]
	switch last {
	case 'B':
		if v, err := strconv.ParseInt(body, 2, 64); err == nil {
			return v, nil
		}
	case 'O':
		if v, err := strconv.ParseInt(body, 8, 64); err == nil {
			return v, nil
		}
	case 'D':
		if v, err := strconv.ParseInt(body, 10, 64); err == nil {
			return v, nil
		}
	case 'H':
		if v, err := strconv.ParseInt(body, 16, 64); err == nil {
			return v, nil
		}
	}

	// No recognized suffix (or suffixed body failed to parse): treat the
	// whole token as plain decimal.
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrBadOperand, "invalid numeric literal %q", tok)
	}
	return v, nil
}

// ParseCharLiteral parses a single-quoted character literal such as 'A' into
// its ASCII code. It is a small companion to ParseNumericLiteral used by the
// operand evaluator for immediates written as character constants.
func ParseCharLiteral(tok string) (int64, bool) {
	if len(tok) >= 3 && tok[0] == '\'' && tok[len(tok)-1] == '\'' {
		body := tok[1 : len(tok)-1]
		if len(body) == 1 {
			return int64(body[0]), true
		}
	}
	return 0, false
}

// IsNumericLiteral reports whether tok looks like something
// ParseNumericLiteral or ParseCharLiteral could consume, used by the operand
// parser to distinguish immediates from register/label/memory tokens.
func IsNumericLiteral(tok string) bool {
	if _, ok := ParseCharLiteral(tok); ok {
		return true
	}
	if tok == "" {
		return false
	}
	s := strings.ToUpper(tok)
	if strings.HasPrefix(s, "0X") {
		return true
	}
	c := s[0]
	if c < '0' || c > '9' {
		return false
	}
	_, err := ParseNumericLiteral(tok)
	return err == nil
}
