// Package transform turns an order's flattened metafields into the four
// values written to the sheet.
package transform

import (
	"strings"
	"unicode"

	"github.com/sipeed/ordersync/pkg/commerce"
	"github.com/sipeed/ordersync/pkg/config"
)

type Transformer struct {
	keys [4]string
}

func New(mapping config.FieldMapping) *Transformer {
	return &Transformer{keys: mapping.Keys()}
}

// Transform reads the configured keys in column order. Missing keys yield
// "". The first value goes through PackingSlipNotes, the rest are trimmed.
func (t *Transformer) Transform(attrs commerce.Attributes) [4]string {
	var out [4]string
	for i, key := range t.keys {
		raw := attrs[key]
		if i == 0 {
			out[i] = PackingSlipNotes(raw)
			continue
		}
		out[i] = strings.TrimSpace(raw)
	}
	return out
}

// PackingSlipNotes drops the first two lines of a notes field. The first
// line is a label and the second is left blank by convention, so a value
// with two or fewer lines carries no notes at all.
func PackingSlipNotes(raw string) string {
	lines := strings.Split(raw, "\n")
	if len(lines) <= 2 {
		return ""
	}
	return strings.TrimRightFunc(strings.Join(lines[2:], "\n"), unicode.IsSpace)
}
