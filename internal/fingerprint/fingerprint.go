// Package fingerprint derives stable cache keys from element descriptors.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/rcliao/element-memory/internal/model"
)

// TextPreviewLen is the number of characters of element text that take part
// in the fingerprint.
const TextPreviewLen = 100

// Canonical is the subset of a descriptor that identifies an element across
// renders. Field order is fixed so the JSON encoding is deterministic.
type Canonical struct {
	Tag     string `json:"tag"`
	ID      string `json:"id"`
	Classes string `json:"classes"`
	Text    string `json:"text_preview"`
	X       int64  `json:"x"`
	Y       int64  `json:"y"`
}

// CanonicalOf normalizes d: lower-case tag, collapsed class list, NFC text cut
// to TextPreviewLen runes, coordinates rounded to the nearest pixel.
func CanonicalOf(d model.ElementDescriptor) Canonical {
	return Canonical{
		Tag:     strings.ToLower(strings.TrimSpace(d.Tag)),
		ID:      strings.TrimSpace(d.ID),
		Classes: strings.Join(strings.Fields(d.Classes), " "),
		Text:    truncate(norm.NFC.String(d.Text), TextPreviewLen),
		X:       round(d.Rect.X),
		Y:       round(d.Rect.Y),
	}
}

// Of returns the fingerprint of d: the first 128 bits of SHA-256 over the
// canonical JSON, hex encoded. It never fails.
func Of(d model.ElementDescriptor) model.Fingerprint {
	// Marshal cannot fail on a struct of strings and ints.
	b, _ := json.Marshal(CanonicalOf(d))
	h := sha256.Sum256(b)
	return model.Fingerprint(hex.EncodeToString(h[:16]))
}

// Selector builds a best-effort CSS-like locator: #id, else tag plus the
// first two classes, else the bare tag.
func Selector(d model.ElementDescriptor) string {
	tag := strings.ToLower(strings.TrimSpace(d.Tag))
	if tag == "" {
		tag = "div"
	}
	if id := strings.TrimSpace(d.ID); id != "" {
		return "#" + id
	}
	classes := strings.Fields(d.Classes)
	if len(classes) > 2 {
		classes = classes[:2]
	}
	if len(classes) == 0 {
		return tag
	}
	return tag + "." + strings.Join(classes, ".")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func round(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f))
}
