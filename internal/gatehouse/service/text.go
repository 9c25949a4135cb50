package service

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// siteLanguage drives name ordering and case folding. Collators and casers
// keep internal buffers, so a fresh one is built per call.
var siteLanguage = language.BrazilianPortuguese

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(fold(s), fold(prefix))
}

// sortByName orders items by name in the site's collation, ties broken by
// key so the order is total.
func sortByName[T any](items []T, name func(T) string, key func(T) int64) {
	col := collate.New(siteLanguage, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(items, func(i, j int) bool {
		if c := col.CompareString(name(items[i]), name(items[j])); c != 0 {
			return c < 0
		}
		return key(items[i]) < key(items[j])
	})
}
