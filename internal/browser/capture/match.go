// internal/browser/capture/match.go
package capture

import (
	"path"
	"strings"

	"github.com/samber/lo"
)

// Matcher decides which responses are captured, by mime type.
type Matcher func(mime string) bool

// MatchAll captures every response.
func MatchAll() Matcher { return func(string) bool { return true } }

// MatchMime captures responses whose mime type matches any of the glob
// patterns ("video/*", "application/vnd.apple.mpegurl"). Matching ignores
// case and any parameters after ';'. Malformed patterns never match.
func MatchMime(patterns ...string) Matcher {
	pats := lo.Map(patterns, func(p string, _ int) string { return strings.ToLower(strings.TrimSpace(p)) })
	return func(mime string) bool {
		mime = strings.ToLower(strings.TrimSpace(mime))
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		return lo.ContainsBy(pats, func(p string) bool {
			ok, err := path.Match(p, mime)
			return err == nil && ok
		})
	}
}
