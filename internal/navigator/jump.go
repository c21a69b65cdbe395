package navigator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

// leading returns the case-folded first rune of s, or 0 for an empty string.
func leading(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0
	}
	return unicode.ToLower(r)
}

// JumpForward moves to the nearest following item whose leading letter
// sorts after the highlighted one. No match leaves the highlight unchanged.
func (n *Navigator) JumpForward() {
	if n.mode != GamesMenu || len(n.items) == 0 {
		return
	}
	current := leading(n.items[n.highlighted])
	for i := n.highlighted + 1; i < len(n.items); i++ {
		if leading(n.items[i]) > current {
			n.highlighted = i
			n.ensureVisible()
			return
		}
	}
}

// JumpBackward moves to the nearest preceding item whose leading letter
// sorts before the highlighted one.
func (n *Navigator) JumpBackward() {
	if n.mode != GamesMenu || len(n.items) == 0 {
		return
	}
	current := leading(n.items[n.highlighted])
	for i := n.highlighted - 1; i >= 0; i-- {
		if leading(n.items[i]) < current {
			n.highlighted = i
			n.ensureVisible()
			return
		}
	}
}

// Find moves the highlight to the best fuzzy match for query in the list in
// view. The selection set is untouched. It returns false if nothing matched.
func (n *Navigator) Find(query string) bool {
	query = strings.TrimSpace(query)
	count := n.Len()
	if query == "" || count == 0 {
		return false
	}

	labels := make([]string, count)
	for i := range labels {
		labels[i] = strings.ToLower(n.Label(i))
	}

	matches := fuzzy.Find(strings.ToLower(query), labels)
	if len(matches) == 0 {
		return false
	}
	n.highlighted = matches[0].Index
	n.ensureVisible()
	return true
}
