package xmpp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

func TestFramerStreamOpenFramedImmediately(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	frames, err := f.Feed([]byte(`<stream:stream to="na2.chat.si.riotgames.com" version="1.0">`))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != KindStreamOpen {
		t.Fatalf("got %+v, want one stream-open frame", frames)
	}
}

func TestFramerSelfClosingPresence(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	frames := mustFeed(t, f, `<presence id="1"/>`)
	if len(frames) != 1 || frames[0].Kind != KindPresence {
		t.Fatalf("got %+v, want one presence frame", frames)
	}
	if string(frames[0].Raw) != `<presence id="1"/>` {
		t.Fatalf("got raw %q", frames[0].Raw)
	}
}

func TestFramerFullFormMessage(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	raw := `<message to="a@b" from="c@d"><body>hi</body></message>`
	frames := mustFeed(t, f, raw)
	if len(frames) != 1 || frames[0].Kind != KindMessage {
		t.Fatalf("got %+v, want one message frame", frames)
	}
	if string(frames[0].Raw) != raw {
		t.Fatalf("got raw %q, want %q", frames[0].Raw, raw)
	}
}

func TestFramerSplitAcrossReads(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)

	full := `<presence to="a@b/res"><show>away</show></presence>`
	var got []Frame
	for i := 0; i < len(full); i++ {
		frames, err := f.Feed([]byte{full[i]})
		if err != nil {
			t.Fatalf("Feed byte %d: %v", i, err)
		}
		got = append(got, frames...)
	}
	if len(got) != 1 || got[0].Kind != KindPresence {
		t.Fatalf("got %+v, want one presence frame", got)
	}
	if string(got[0].Raw) != full {
		t.Fatalf("got raw %q, want %q", got[0].Raw, full)
	}
}

func TestFramerNestedSameNameElement(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	raw := `<iq type="get"><query><iq>nested text, not a real stanza</iq></query></iq>`
	frames := mustFeed(t, f, raw)
	if len(frames) != 1 || frames[0].Kind != KindIQ {
		t.Fatalf("got %+v, want one iq frame", frames)
	}
	if string(frames[0].Raw) != raw {
		t.Fatalf("got raw %q, want %q", frames[0].Raw, raw)
	}
}

func TestFramerCDATAContainingStanzaLikeText(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	raw := `<message><body><![CDATA[<presence>fake</presence>]]></body></message>`
	frames := mustFeed(t, f, raw)
	if len(frames) != 1 || frames[0].Kind != KindMessage {
		t.Fatalf("got %+v, want exactly one message frame (CDATA must not be parsed as a stanza)", frames)
	}
	if string(frames[0].Raw) != raw {
		t.Fatalf("got raw %q, want %q", frames[0].Raw, raw)
	}
}

func TestFramerCommentInsideStanza(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	raw := `<presence><!-- <presence>not real</presence> --><show>chat</show></presence>`
	frames := mustFeed(t, f, raw)
	if len(frames) != 1 || frames[0].Kind != KindPresence {
		t.Fatalf("got %+v, want one presence frame", frames)
	}
	if string(frames[0].Raw) != raw {
		t.Fatalf("got raw %q, want %q", frames[0].Raw, raw)
	}
}

func TestFramerQuotedAngleBracketsInAttribute(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	raw := `<message to="weird>value" from="a<b"><body>hi</body></message>`
	frames := mustFeed(t, f, raw)
	if len(frames) != 1 || frames[0].Kind != KindMessage {
		t.Fatalf("got %+v, want one message frame", frames)
	}
	if string(frames[0].Raw) != raw {
		t.Fatalf("got raw %q, want %q", frames[0].Raw, raw)
	}
}

func TestFramerMixedKindStream(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	frames := mustFeed(t, f, `<presence/><message to="a"><body>hi</body></message><iq type="set"/>`)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	want := []Kind{KindPresence, KindMessage, KindIQ}
	for i, k := range want {
		if frames[i].Kind != k {
			t.Fatalf("frame %d: got kind %v, want %v", i, frames[i].Kind, k)
		}
	}
}

func TestFramerTotalityAcrossArbitrarySplits(t *testing.T) {
	t.Parallel()

	input := `<stream:stream to="x"><presence/><message><body>hi</body></message><iq type="get"/>`
	for split := 1; split < len(input); split++ {
		f := NewFramer()
		var reconstructed bytes.Buffer
		frames, err := f.Feed([]byte(input[:split]))
		if err != nil {
			t.Fatalf("split %d: Feed first half: %v", split, err)
		}
		for _, fr := range frames {
			reconstructed.Write(fr.Raw)
		}
		frames, err = f.Feed([]byte(input[split:]))
		if err != nil {
			t.Fatalf("split %d: Feed second half: %v", split, err)
		}
		for _, fr := range frames {
			reconstructed.Write(fr.Raw)
		}
		reconstructed.Write(f.buf)
		if reconstructed.String() != input {
			t.Fatalf("split %d: reconstructed %q, want %q", split, reconstructed.String(), input)
		}
	}
}

func TestFramerStreamCloseTag(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	frames := mustFeed(t, f, `<presence/></stream:stream>`)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Kind != KindPresence {
		t.Fatalf("frame 0: got kind %v, want presence", frames[0].Kind)
	}
	if frames[1].Kind != KindOther {
		t.Fatalf("frame 1: got kind %v, want other", frames[1].Kind)
	}
	if string(frames[1].Raw) != `</stream:stream>` {
		t.Fatalf("frame 1: got raw %q, want the closing tag forwarded whole", frames[1].Raw)
	}
}

func TestFramerMalformedTopLevelByte(t *testing.T) {
	t.Parallel()

	f := NewFramer()
	mustFeed(t, f, `<stream:stream>`)
	_, err := f.Feed([]byte(`not a tag`))
	if !errors.Is(err, domain.ErrProtocolFraming) {
		t.Fatalf("got err %v, want ErrProtocolFraming", err)
	}
}

func mustFeed(t *testing.T, f *Framer, s string) []Frame {
	t.Helper()
	frames, err := f.Feed([]byte(s))
	if err != nil {
		t.Fatalf("Feed(%q): %v", s, err)
	}
	return frames
}
