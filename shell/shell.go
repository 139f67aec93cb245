// Package shell provides the pure string transforms between shell command
// lines and argument vectors: quoting-aware tokenization of a command line
// into fields, and composition of a native Windows command line from an
// argument vector. It performs no expansion and never invokes a shell.
package shell

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmptyCommand is returned when a command line contains no fields.
	ErrEmptyCommand = errors.New("empty command")

	// ErrUnknownEscape is returned for a backslash escape outside the
	// supported set.
	ErrUnknownEscape = errors.New("unknown escape sequence")

	// ErrUnterminatedString is returned when a quoted string never closes.
	ErrUnterminatedString = errors.New("string not terminated")
)

// Split tokenizes a pseudo-shell command line into fields. Single quotes
// preserve everything literally, double quotes allow backslash escapes, and
// a bare backslash escapes the next metacharacter. Shell operator characters
// (|, &, ;, redirections, globs, substitutions) are rejected rather than
// silently passed through, since no shell is involved in executing the
// result.
func Split(line string) ([]string, error) {
	p := parser{s: line}
	return p.parseLine()
}

type parser struct {
	buf strings.Builder
	s   string
}

func (p *parser) parseLine() ([]string, error) {
	var fields []string
	for len(p.s) > 0 {
		r, size := utf8.DecodeRuneInString(p.s)
		if unicode.IsSpace(r) {
			p.s = p.s[size:]
			continue
		}
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return fields, nil
}

func (p *parser) parseField() (string, error) {
	p.buf.Reset()
	esc := false
	for len(p.s) > 0 {
		r, size := utf8.DecodeRuneInString(p.s)
		p.s = p.s[size:]

		if esc {
			switch r {
			case '|', '&', ';', '<', '>', '(', ')', '$',
				'`', '\\', '"', '\'', ' ', '\t', '\n',
				'*', '?', '[', '#', '~', '=', '%':
				p.buf.WriteRune(r)
			default:
				return "", ErrUnknownEscape
			}
			esc = false
			continue
		}
		if unicode.IsSpace(r) {
			break
		}
		switch r {
		case '\'':
			s, err := p.parseSingleQuotes()
			if err != nil {
				return "", err
			}
			p.buf.WriteString(s)
		case '"':
			s, err := p.parseDoubleQuotes()
			if err != nil {
				return "", err
			}
			p.buf.WriteString(s)
		case '\\':
			esc = true
		case '|', '&', ';', '<', '>', '(', ')', '$', '`',
			'*', '?', '[', '#', '~':
			return "", errors.New("unsupported character: " + string(r))
		default:
			p.buf.WriteRune(r)
		}
	}
	return p.buf.String(), nil
}

func (p *parser) parseSingleQuotes() (string, error) {
	for i, r := range p.s {
		if r == '\'' {
			str := p.s[:i]
			p.s = p.s[i+1:]
			return str, nil
		}
	}
	return "", ErrUnterminatedString
}

func (p *parser) parseDoubleQuotes() (string, error) {
	var buf strings.Builder
	var esc bool
	for i, r := range p.s {
		if esc {
			switch r {
			default:
				buf.WriteRune('\\')
				buf.WriteRune(r)
			case '$', '`', '"', '\\':
				buf.WriteRune(r)
			case '\n':
				// Line continuation.
			}
			esc = false
			continue
		}
		switch r {
		case '"':
			p.s = p.s[i+1:]
			return buf.String(), nil
		case '\\':
			esc = true
		case '$', '`':
			return "", errors.New("unsupported character inside string: " + string(r))
		default:
			buf.WriteRune(r)
		}
	}
	return "", ErrUnterminatedString
}

// EscapeArg quotes a single argument following the Windows C runtime
// command-line rules: the argument is wrapped in double quotes when it is
// empty or contains whitespace, embedded quotes are backslash-escaped, and
// runs of backslashes are doubled only where they precede a quote.
func EscapeArg(arg string) string {
	needquote := arg == "" || strings.ContainsAny(arg, " \t")
	if !needquote && !strings.ContainsAny(arg, `"\`) {
		return arg
	}
	var b strings.Builder
	b.Grow(len(arg) + 2)
	if needquote {
		b.WriteByte('"')
	}
	slashes := 0
	for i := 0; i < len(arg); i++ {
		switch c := arg[i]; c {
		case '\\':
			slashes++
		case '"':
			for j := 0; j < 2*slashes+1; j++ {
				b.WriteByte('\\')
			}
			b.WriteByte('"')
			slashes = 0
		default:
			for j := 0; j < slashes; j++ {
				b.WriteByte('\\')
			}
			slashes = 0
			b.WriteByte(c)
		}
	}
	for j := 0; j < slashes; j++ {
		b.WriteByte('\\')
	}
	if needquote {
		for j := 0; j < slashes; j++ {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	return b.String()
}

// Join composes a native command line from an argument vector by escaping
// each argument and separating with spaces.
func Join(argv []string) string {
	escaped := make([]string, len(argv))
	for i, a := range argv {
		escaped[i] = EscapeArg(a)
	}
	return strings.Join(escaped, " ")
}
