package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/tracto/internal/models"
)

// Fingerprint derives the deterministic cache key for a job's input:
// processor kind + normalized input descriptor + sorted options. Identical
// submissions always map to the same fingerprint regardless of option order.
func Fingerprint(kind models.ProcessorKind, input models.InputDescriptor) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteString("|")
	b.WriteString(normalizeSource(input))

	if len(input.Options) > 0 {
		keys := make([]string, 0, len(input.Options))
		for k := range input.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "|%s=%s", k, input.Options[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalizeSource canonicalizes the populated source reference so trivial
// variations (trailing slashes, surrounding whitespace, URL case in the
// scheme/host) do not defeat cache reuse.
func normalizeSource(input models.InputDescriptor) string {
	switch {
	case input.Path != "":
		return "path:" + strings.TrimSpace(input.Path)
	case input.URL != "":
		url := strings.TrimRight(strings.TrimSpace(input.URL), "/")
		if i := strings.Index(url, "://"); i > 0 {
			url = strings.ToLower(url[:i+3]) + url[i+3:]
		}
		return "url:" + url
	default:
		return "text:" + input.Text
	}
}
