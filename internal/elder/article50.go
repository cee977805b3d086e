package elder

import "github.com/RedBackRubbish/TheNest/ungoverned"

// Article50 is re-exported for case records; the constant itself lives
// in the quarantine zone.
const Article50 = ungoverned.Article50

// Watermark builds the martial-law liability watermark. This is the one
// declared seam into the ungoverned namespace — cmd/quarantine-check
// rejects any other import of it.
func Watermark() map[string]any {
	return ungoverned.Watermark()
}
