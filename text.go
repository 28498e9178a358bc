package loreline

import "strings"

// parseTextFragments splits the raw content of a text line or quoted
// string into the alternating literal / interpolation / tag-marker
// stream spec §3 and §4.1 describe. It is a dedicated fragment-emitting
// walk run once at parse time against the lexer's raw TokenText/
// TokenString value, generalizing the teacher's single-pass
// stringEscapeReplacer (value.go's escape handling) into something that
// also records fragment boundaries, which a plain string.Replacer
// cannot do.
//
// Escape decoding (\\ \" \n \t \r) only applies when quoted is true:
// unquoted narrator/dialogue lines have no delimiter to escape out of,
// so a literal backslash there is just a literal backslash.
func parseTextFragments(raw string, quoted bool) []TextFragment {
	var frags []TextFragment
	var lit strings.Builder
	offset := 0

	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, TextFragment{Kind: FragLiteral, Literal: lit.String(), Offset: offset})
			offset += lit.Len()
			lit.Reset()
		}
	}

	i := 0
	n := len(raw)
	for i < n {
		c := raw[i]
		switch {
		case quoted && c == '\\' && i+1 < n:
			switch raw[i+1] {
			case '\\':
				lit.WriteByte('\\')
			case '"':
				lit.WriteByte('"')
			case 'n':
				lit.WriteByte('\n')
			case 't':
				lit.WriteByte('\t')
			case 'r':
				lit.WriteByte('\r')
			case '$':
				lit.WriteByte('$')
			case '<':
				lit.WriteByte('<')
			default:
				lit.WriteByte(raw[i+1])
			}
			i += 2

		case c == '$' && i+1 < n && isIdentStartByte(raw[i+1]):
			flush()
			j := i + 1
			for j < n && isIdentByte(raw[j]) {
				j++
			}
			path := []string{raw[i+1 : j]}
			for j < n && raw[j] == '.' && j+1 < n && isIdentStartByte(raw[j+1]) {
				k := j + 1
				for k < n && isIdentByte(raw[k]) {
					k++
				}
				path = append(path, raw[j+1:k])
				j = k
			}
			frags = append(frags, TextFragment{Kind: FragInterp, Path: path, Offset: offset})
			i = j

		case c == '<':
			if end, name, closing, ok := scanTagMarker(raw, i); ok {
				flush()
				kind := FragTagOpen
				if closing {
					kind = FragTagClose
				}
				frags = append(frags, TextFragment{Kind: kind, Tag: name, Offset: offset})
				i = end
			} else {
				lit.WriteByte(c)
				i++
			}

		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return frags
}

// scanTagMarker recognises "<tag>" or "</tag>" starting at raw[i] ('<').
// Returns the index just past the closing '>', the tag name, whether it
// is a closing marker, and whether a well-formed marker was found.
func scanTagMarker(raw string, i int) (end int, name string, closing bool, ok bool) {
	j := i + 1
	if j < len(raw) && raw[j] == '/' {
		closing = true
		j++
	}
	start := j
	for j < len(raw) && isIdentByte(raw[j]) {
		j++
	}
	if j == start || j >= len(raw) || raw[j] != '>' {
		return 0, "", false, false
	}
	return j + 1, raw[start:j], closing, true
}

func isIdentStartByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentByte(b byte) bool {
	return isIdentStartByte(b) || (b >= '0' && b <= '9')
}

// fragmentsRawText reconstructs the quoted source form of a fragment
// stream (interpolation markers and tag markers written back out as
// "$path"/"<tag>"), used by the printer to re-emit a Text node that
// will be wrapped in surrounding "..." quotes: literal chunks are
// re-escaped, mirroring how parseTextFragments decoded them only
// because quoted is true there.
func fragmentsRawText(frags []TextFragment) string {
	return fragmentsRawTextImpl(frags, true)
}

// fragmentsRawTextUnquoted is fragmentsRawText's counterpart for
// narrator lines, character dialogue lines, and choice-option prompts:
// none of those are wrapped in "..." quotes, so their literal chunks
// must come back out byte-for-byte, exactly as captureRawLineText (see
// lexer.go) captured them in the first place and exactly as
// parseTextFragments left them (quoted is false there, so no escape
// decoding ever ran). Escaping them here as if they would be requoted
// would change a literal `"` or `\` typed in an unquoted line into two
// characters on every print, and reparsing the result back as unquoted
// text would keep those extra characters literally — print(parse(x))
// would no longer be a fixed point.
func fragmentsRawTextUnquoted(frags []TextFragment) string {
	return fragmentsRawTextImpl(frags, false)
}

func fragmentsRawTextImpl(frags []TextFragment, escape bool) string {
	var sb strings.Builder
	for _, f := range frags {
		switch f.Kind {
		case FragLiteral:
			if escape {
				sb.WriteString(escapeTextLiteral(f.Literal))
			} else {
				sb.WriteString(f.Literal)
			}
		case FragInterp:
			sb.WriteByte('$')
			sb.WriteString(strings.Join(f.Path, "."))
		case FragTagOpen:
			sb.WriteByte('<')
			sb.WriteString(f.Tag)
			sb.WriteByte('>')
		case FragTagClose:
			sb.WriteString("</")
			sb.WriteString(f.Tag)
			sb.WriteByte('>')
		}
	}
	return sb.String()
}

// escapeTextLiteral re-escapes a decoded literal chunk for quoted-string
// printer output.
func escapeTextLiteral(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
