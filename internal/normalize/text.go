package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Body applies the canonical body normalisation used before hashing and
// before full-text indexing: CRLF is folded to LF, trailing whitespace
// is stripped per line, runs of two or more blank lines collapse to
// one, and the whole result is trimmed.
func Body(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		if line == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
		} else {
			blankRun = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// DedupeHash computes H(author_login NUL normalised_body) as a
// hex-encoded SHA-256 digest. The title is deliberately excluded.
func DedupeHash(authorLogin, body string) string {
	normalized := Body(body)
	h := sha256.New()
	h.Write([]byte(authorLogin))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
