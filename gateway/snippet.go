package gateway

import "strings"

// snippetRunes caps snippet length in the search response.
const snippetRunes = 240

// makeSnippet returns the leading portion of the text, cut on a word
// boundary where possible.
func makeSnippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}

	cut := runes[:snippetRunes]
	for i := len(cut) - 1; i > snippetRunes/2; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return string(cut) + "…"
}
