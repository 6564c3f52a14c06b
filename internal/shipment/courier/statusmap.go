package courier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mishimanto/ecommerce/internal/shipment/domain"
)

//go:embed statusmap.yaml
var defaultStatusMap []byte

// StatusMap translates each courier's status text into domain statuses.
type StatusMap map[string]map[string]domain.Status

// LoadStatusMap returns the built-in tables, or the file at path when it
// is set. A file replaces the built-in tables entirely.
func LoadStatusMap(path string) (StatusMap, error) {
	raw := defaultStatusMap
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read status map: %w", err)
		}
		raw = b
	}
	return ParseStatusMap(raw)
}

func ParseStatusMap(raw []byte) (StatusMap, error) {
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse status map: %w", err)
	}
	m := make(StatusMap, len(doc))
	for courier, table := range doc {
		entries := make(map[string]domain.Status, len(table))
		for text, status := range table {
			s := domain.Status(status)
			if !s.Valid() {
				return nil, fmt.Errorf("status map %s: %q maps to unknown status %q", courier, text, status)
			}
			entries[normalize(text)] = s
		}
		m[strings.ToLower(courier)] = entries
	}
	return m, nil
}

// Resolve maps one courier status text.
func (m StatusMap) Resolve(courier, raw string) (domain.Status, error) {
	s, ok := m[strings.ToLower(courier)][normalize(raw)]
	if !ok {
		return "", domain.ErrUnknownStatus.Withf("%s: %q", courier, raw)
	}
	return s, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
