// internal/browser/interact/keymap.go
package interact

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/chromedp/chromedp/kb"
)

// ErrUnknownKey is returned when a key name has no keymap entry.
var ErrUnknownKey = errors.New("interact: unknown key")

// namedKeys indexes the chromedp keymap by DOM key name ("Enter",
// "ArrowLeft", ...). When several runes share a name the entry whose code
// matches the name is preferred ("Enter" over "NumpadEnter"), then the
// lowest rune.
var namedKeys = sync.OnceValue(func() map[string]rune {
	m := make(map[string]rune, len(kb.Keys))
	for r, k := range kb.Keys {
		prev, ok := m[k.Key]
		if !ok || better(r, k, prev, kb.Keys[prev]) {
			m[k.Key] = r
		}
	}
	return m
})

func better(r rune, k *kb.Key, prev rune, pk *kb.Key) bool {
	exact, prevExact := k.Code == k.Key, pk.Code == pk.Key
	if exact != prevExact {
		return exact
	}
	return r < prev
}

// lookupKey accepts a single character ("a", "\r") or a DOM key name.
func lookupKey(name string) (*kb.Key, error) {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if k, ok := kb.Keys[r]; ok {
			return k, nil
		}
	}
	if r, ok := namedKeys()[name]; ok {
		return kb.Keys[r], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}
