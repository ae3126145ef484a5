package tts

import (
	"errors"
	"strings"
)

// ErrEmptyAfterSanitize means the text contained nothing speakable.
var ErrEmptyAfterSanitize = errors.New("tts: text empty after sanitize")

var markdownMarks = strings.NewReplacer(
	"**", "",
	"__", "",
	"~~", "",
	"```", "",
	"`", "",
	"*", "",
	"_", " ",
	">", " ",
)

// Sanitize strips everything a voice should not read aloud: emoji and their
// variation selectors, hashtag markers, markdown emphasis, and stray HASH
// placeholder tokens. Whitespace is collapsed to single spaces.
func Sanitize(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if speechless(r) {
			continue
		}
		b.WriteRune(r)
	}
	s := markdownMarks.Replace(b.String())
	s = strings.ReplaceAll(s, "#", "")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, w := range fields {
		if w == "HASH" {
			continue
		}
		kept = append(kept, w)
	}
	s = strings.Join(kept, " ")
	if s == "" {
		return "", ErrEmptyAfterSanitize
	}
	return s, nil
}

// speechless reports whether the rune is an emoji, pictograph, variation
// selector, or joiner that TTS providers mispronounce.
func speechless(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, pictographs, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r == 0x200D: // zero-width joiner
		return true
	case r == 0x20E3: // combining keycap
		return true
	}
	return false
}
