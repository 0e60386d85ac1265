package xmpp

import (
	"fmt"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

// RewritePresence rewrites a framed presence stanza so the receiving
// server sees an unavailable presence, regardless of what the client
// actually sent. Every other frame, and every presence frame while mode
// is Online, passes through byte-identical.
//
// The rewrite keeps only the to, from and id attributes (the ones a
// server needs to route and correlate the stanza) and drops every
// child element and every other attribute, including whatever show,
// status or priority the client was announcing.
func RewritePresence(frame Frame, mode string) ([]byte, error) {
	if frame.Kind != KindPresence || mode != domain.ModeInvisible {
		return frame.Raw, nil
	}

	if _, _, _, ok, err := scanStartTag(frame.Raw); err != nil {
		return nil, err
	} else if !ok {
		return nil, &domain.RelayError{Op: "xmpp.rewrite", Err: fmt.Errorf("%w: truncated presence frame", domain.ErrProtocolFraming)}
	}

	to, hasTo := attrValue(frame.Raw, "to")
	from, hasFrom := attrValue(frame.Raw, "from")
	id, hasID := attrValue(frame.Raw, "id")

	// to/from/id are copied verbatim: they were already valid,
	// already-escaped XML attribute text in the client's own stanza, so
	// re-escaping them here would double-encode entities like "&amp;".
	out := make([]byte, 0, 64)
	out = append(out, "<presence"...)
	if hasTo {
		out = append(out, fmt.Sprintf(` to="%s"`, to)...)
	}
	if hasFrom {
		out = append(out, fmt.Sprintf(` from="%s"`, from)...)
	}
	if hasID {
		out = append(out, fmt.Sprintf(` id="%s"`, id)...)
	}
	out = append(out, ` type="unavailable"/>`...)
	return out, nil
}

// attrValue extracts the value of attribute name from raw's opening
// tag. It only looks within the opening tag itself (up to the first
// unquoted '>'), so attribute-like text inside child content or CDATA
// is never mistaken for an attribute.
func attrValue(raw []byte, name string) (string, bool) {
	_, _, tagEnd, ok, err := scanStartTag(raw)
	if err != nil || !ok {
		return "", false
	}
	tag := raw[:tagEnd+1]

	needle := name + "="
	for i := 0; i+len(needle) < len(tag); i++ {
		if string(tag[i:i+len(needle)]) != needle {
			continue
		}
		// Require a preceding whitespace byte so "id=" doesn't match
		// inside a longer attribute name like "legacy-id=".
		if i > 0 && !isXMLSpace(tag[i-1]) {
			continue
		}
		j := i + len(needle)
		if j >= len(tag) {
			return "", false
		}
		quote := tag[j]
		if quote != '"' && quote != '\'' {
			continue
		}
		j++
		start := j
		for j < len(tag) && tag[j] != quote {
			j++
		}
		if j >= len(tag) {
			return "", false
		}
		return string(tag[start:j]), true
	}
	return "", false
}
