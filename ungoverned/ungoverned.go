// Package ungoverned is the quarantine zone: everything that exists
// outside constitutional protection lives here and nowhere else.
//
// The namespace rule is enforced at build time by cmd/quarantine-check:
// no governed package may import this one, with internal/elder as the
// single declared seam (Article 50 invocations). The package itself
// imports nothing from the governed tree.
package ungoverned

import "time"

// Article50 is the principle cited on every martial-law case.
const Article50 = "Article 50: Martial Governance"

// QuarantinePath is where ungoverned artifacts belong.
const QuarantinePath = "ungoverned/"

// Warning is stamped verbatim into every watermark.
const Warning = "This artifact was produced under martial governance. No Senate deliberation occurred. All liability rests with the KEEPER."

// Watermark builds the liability watermark stamped on every ungoverned
// artifact. The KEEPER, not the gateway, carries the consequences.
func Watermark() map[string]any {
	return map[string]any{
		"zone":                      "UNGOVERNED",
		"article":                   Article50,
		"liability":                 "KEEPER",
		"constitutional_protection": false,
		"senate_reviewed":           false,
		"timestamp":                 time.Now().UTC().Format(time.RFC3339),
		"quarantine_path":           QuarantinePath,
		"warning":                   Warning,
	}
}
