package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"api":       {"api_version", "client_type", "host", "token_file"},
	"transfers": {"bandwidth_limit", "parallel_downloads", "parallel_uploads", "part_size", "share_id"},
	"network":   {"max_retries", "timeout", "user_agent"},
	"logging":   {"log_format", "log_level"},
	"journal":   {"enabled", "path"},
}

// knownSections is the sorted list of section names, so suggestions are
// deterministic when two candidates are equally close.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	slices.Sort(names)

	return names
}()

// checkUnknownKeys turns every undecoded key into an error, with a
// suggestion when a known key is close enough.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		section := key[0]

		candidates, ok := knownKeys[section]
		if !ok {
			if reported[section] {
				continue
			}

			reported[section] = true
			errs = append(errs, unknownKeyError(section, "", closestMatch(section, knownSections)))

			continue
		}

		if len(key) < 2 {
			continue
		}

		field := key[1]
		name := section + "." + field

		if reported[name] {
			continue
		}

		reported[name] = true
		errs = append(errs, unknownKeyError(name, section+".", closestMatch(field, candidates)))
	}

	return errors.Join(errs...)
}

func unknownKeyError(name, prefix, suggestion string) error {
	if suggestion == "" {
		return fmt.Errorf("unknown config key %q", name)
	}

	return fmt.Errorf("unknown config key %q; did you mean %q?", name, prefix+suggestion)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using two
// rolling rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
