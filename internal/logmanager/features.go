package logmanager

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// maxFeatureDepth bounds how deep nested entry data is walked for features.
const maxFeatureDepth = 8

// Words splits text into lower-cased words of letters and digits.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// FieldFeature is the feature of one field equality, field=value with the
// value lower-cased.
func FieldFeature(field string, value any) string {
	return field + "=" + strings.ToLower(fmt.Sprint(value))
}

// ExtractFeatures returns the searchable features of entry data: every word
// of every string value, and field=value for every scalar value. Nested
// objects use dotted field names. The result is sorted and free of
// duplicates.
func ExtractFeatures(data map[string]any) []string {
	set := make(map[string]struct{})
	collectFeatures(set, "", data, 0)
	return sortedKeys(set)
}

func collectFeatures(set map[string]struct{}, prefix string, value any, depth int) {
	if depth > maxFeatureDepth {
		return
	}
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			field := key
			if prefix != "" {
				field = prefix + "." + key
			}
			collectFeatures(set, field, child, depth+1)
		}
	case []any:
		for _, child := range v {
			collectFeatures(set, prefix, child, depth+1)
		}
	case string:
		for _, word := range Words(v) {
			set[word] = struct{}{}
		}
		if prefix != "" {
			set[FieldFeature(prefix, v)] = struct{}{}
		}
	case nil:
	default:
		if prefix != "" {
			set[FieldFeature(prefix, v)] = struct{}{}
		}
	}
}

// QueryFeatures returns the features a search must match: every word of
// query and one field=value feature per filter.
func QueryFeatures(query string, filters map[string]string) []string {
	set := make(map[string]struct{})
	for _, word := range Words(query) {
		set[word] = struct{}{}
	}
	for field, value := range filters {
		set[FieldFeature(field, value)] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
