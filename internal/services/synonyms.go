package services

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/casaviva/decora-backend/internal/logger"
)

// CategoryMap answers whether a detection name and a product category mean
// the same kind of furniture. Equivalence is data, not code: pairs come
// from a YAML file loaded at startup and are checked in both directions
// after diacritic-stripped normalization.
type CategoryMap struct {
	pairs map[string]map[string]bool
}

type synonymFile struct {
	Synonyms [][]string `yaml:"synonyms"`
}

// defaultSynonymPairs keeps the service usable when the config file is
// missing; the file is still the source of truth in deployments.
var defaultSynonymPairs = [][]string{
	{"poltrona", "cadeira"},
	{"buffet", "aparador"},
	{"mesa de jantar", "mesa"},
	{"sofa", "sofa-cama"},
	{"rack", "estante"},
}

func LoadCategoryMap(path string, log *logger.Logger) (*CategoryMap, error) {
	m := &CategoryMap{pairs: make(map[string]map[string]bool)}

	pairs := defaultSynonymPairs
	raw, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn("category synonym file unavailable, using built-in table", "path", path, "error", err)
		}
	} else {
		var file synonymFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse synonym file %s: %w", path, err)
		}
		if len(file.Synonyms) > 0 {
			pairs = file.Synonyms
		}
	}

	for _, pair := range pairs {
		if len(pair) != 2 {
			if log != nil {
				log.Warn("skipping malformed synonym entry", "entry", pair)
			}
			continue
		}
		m.addPair(pair[0], pair[1])
	}
	return m, nil
}

func (m *CategoryMap) addPair(a, b string) {
	na, nb := NormalizeCategory(a), NormalizeCategory(b)
	if na == "" || nb == "" {
		return
	}
	if m.pairs[na] == nil {
		m.pairs[na] = make(map[string]bool)
	}
	if m.pairs[nb] == nil {
		m.pairs[nb] = make(map[string]bool)
	}
	m.pairs[na][nb] = true
	m.pairs[nb][na] = true
}

// Compatible reports whether a detection name and a product category are
// the same after normalization, or synonyms of each other.
func (m *CategoryMap) Compatible(detectionName, productCategory string) bool {
	a := NormalizeCategory(detectionName)
	b := NormalizeCategory(productCategory)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return m.pairs[a][b]
}

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeCategory lowercases, trims and strips diacritics, so "Sofá"
// and "sofa" compare equal.
func NormalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	out, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		return s
	}
	return out
}
