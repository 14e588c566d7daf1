package chunker

import "unicode/utf8"

// FixedChunks splits text into overlapping windows of at most window
// bytes. Window edges snap back to rune boundaries so no chunk ever
// splits a multi-byte character.
func FixedChunks(text string, window, overlap int) []Chunk {
	if text == "" || window <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= window {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + window
		if end >= len(text) {
			end = len(text)
		} else {
			end = runeFloor(text, end)
			if end <= start {
				_, n := utf8.DecodeRuneInString(text[start:])
				end = start + n
			}
		}
		chunks = append(chunks, Chunk{
			Text:  text[start:end],
			Start: start,
			End:   end,
			Index: len(chunks),
		})
		if end == len(text) {
			break
		}
		next := runeFloor(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// runeFloor returns the largest rune start position <= i.
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
