// Package tokens expands {KEY} placeholders in processor arguments and outputs.
package tokens

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnbalancedToken is returned when a '{' or quote is never closed.
	ErrUnbalancedToken = errors.New("unbalanced token")
	// ErrUnknownToken is returned when a {KEY} has no value.
	ErrUnknownToken = errors.New("unknown token")
)

// UnknownTokenError names the missing key and the input it came from.
type UnknownTokenError struct {
	Key   string
	Input string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown token {%s} in %q", e.Key, e.Input)
}

func (e *UnknownTokenError) Unwrap() error { return ErrUnknownToken }

func unbalanced(open byte, input string) error {
	return fmt.Errorf("%w: unclosed %c in %q", ErrUnbalancedToken, open, input)
}

// Replace expands input against values in a single left-to-right pass.
//
//   - a backslash emits the next character verbatim
//   - 'text' is copied without its quotes and without expansion
//   - {KEY} is replaced by values[KEY]
//
// An unmatched '{' is an error while a stray '}' is copied as-is. Existing manifests
// depend on that asymmetry. Substituted values are never rescanned.
func Replace(values map[string]string, input string) (string, error) {
	var buf strings.Builder
	buf.Grow(len(input))

	for x := 0; x < len(input); x++ {
		c := input[x]
		switch c {
		case '\\':
			if x == len(input)-1 {
				buf.WriteByte(c)
				continue
			}
			x++
			buf.WriteByte(input[x])

		case '{', '\'':
			var key strings.Builder
			closed := false
			y := x + 1
			for ; y < len(input); y++ {
				d := input[y]
				if d == '\\' && y < len(input)-1 {
					y++
					key.WriteByte(input[y])
					continue
				}
				if c == '{' && d == '{' {
					return "", fmt.Errorf("%w: nested '{' in %q", ErrUnbalancedToken, input)
				}
				if (c == '{' && d == '}') || (c == '\'' && d == '\'') {
					closed = true
					break
				}
				key.WriteByte(d)
			}
			if !closed {
				return "", unbalanced(c, input)
			}
			x = y

			if c == '\'' {
				buf.WriteString(key.String())
				continue
			}
			v, ok := values[key.String()]
			if !ok {
				return "", &UnknownTokenError{Key: key.String(), Input: input}
			}
			buf.WriteString(v)

		default:
			buf.WriteByte(c)
		}
	}

	return buf.String(), nil
}
