package conversation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/roundtable/agent/personality"
)

// greetings may precede a vocative at the start of a message ("Hey Nicole, ...").
var greetings = map[string]bool{
	"hey": true, "hi": true, "hello": true, "ok": true, "okay": true,
	"so": true, "well": true, "thanks": true, "dear": true, "and": true,
}

// Addressee is the participant a message is directed at.
type Addressee struct {
	Personality personality.Personality
	Offset      int
}

// DetectAddressee finds the participant a message is addressed to. A name
// counts when it is the leading token, follows an "@", opens a sentence with
// a comma or colon, or closes a sentence as a vocative ("..., Nicole?").
// Matching is case-insensitive on whole words. When several candidates
// qualify the earliest occurrence wins, and the longer name wins a tie.
func DetectAddressee(text string, candidates []personality.Personality) (Addressee, bool) {
	var (
		best  Addressee
		found bool
	)
	for _, p := range candidates {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(name))
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if !addresses(text, loc[0], loc[1]) {
				continue
			}
			if !found || loc[0] < best.Offset ||
				(loc[0] == best.Offset && len(name) > len(best.Personality.Name)) {
				best = Addressee{Personality: p, Offset: loc[0]}
				found = true
			}
			break
		}
	}
	return best, found
}

// addresses reports whether text[start:end] is a name used in address.
func addresses(text string, start, end int) bool {
	before, after := text[:start], text[end:]
	if r, _ := utf8.DecodeLastRuneInString(before); start > 0 && isWordRune(r) {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(after); end < len(text) && isWordRune(r) {
		return false
	}

	if strings.HasSuffix(before, "@") {
		return true
	}

	lead := strings.TrimLeft(before, " \t\r\n\"'“‘*>")
	if lead == "" {
		return true
	}
	if greetings[strings.ToLower(strings.TrimRight(strings.TrimSpace(lead), ","))] {
		return true
	}

	prev := strings.TrimRight(before, " \t")
	next := strings.TrimLeft(after, " \t")
	switch {
	case strings.HasSuffix(prev, ","):
		return next == "" || strings.ContainsAny(next[:1], "?!.,;:\n")
	case strings.HasSuffix(prev, ".") || strings.HasSuffix(prev, "!") ||
		strings.HasSuffix(prev, "?") || strings.HasSuffix(prev, "\n"):
		return next != "" && strings.ContainsAny(next[:1], ",:")
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
