package tts

import "strings"

// segmentMinRunes is the minimum rune length of an emitted segment. Very
// short fragments synthesize with poor prosody, so they stay buffered until
// more text arrives.
const segmentMinRunes = 10

// punctuation holds the runes that may end a synthesis segment.
var punctuation = map[rune]bool{
	'，': true, '。': true, '！': true, '？': true,
	',': true, '.': true, '!': true, '?': true,
	':': true, '：': true, '；': true, ';': true, '、': true,
	'\n': true, '\t': true, '\r': true, '•': true,
}

// NextSegment splits text into the next synthesis segment and the remainder.
// The segment is the longest prefix that ends in a punctuation rune and is
// longer than ten runes; if no such prefix exists the segment is empty and
// everything stays in the remainder. Lengths count runes, not bytes, since
// most traffic is CJK.
func NextSegment(text string) (segment, rest string) {
	runes := []rune(text)
	for i := len(runes); i > segmentMinRunes; i-- {
		if punctuation[runes[i-1]] {
			return string(runes[:i]), string(runes[i:])
		}
	}
	return "", text
}

// Segmenter accumulates streamed text and hands out synthesis segments.
// Not safe for concurrent use; each response owns its own Segmenter.
type Segmenter struct {
	buf string
}

// Push appends streamed text and returns the next segment, if one is ready.
func (s *Segmenter) Push(text string) (segment string, ok bool) {
	s.buf += text
	segment, s.buf = NextSegment(s.buf)
	return segment, segment != ""
}

// Flush returns whatever text is still buffered at end of stream, trimmed of
// surrounding whitespace. An empty return means nothing is left to speak.
func (s *Segmenter) Flush() string {
	rest := strings.TrimSpace(s.buf)
	s.buf = ""
	return rest
}
