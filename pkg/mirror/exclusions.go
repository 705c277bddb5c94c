package mirror

import (
	"path/filepath"
	"strings"

	"github.com/treemirror/treemirror/pkg/plog"
)

// Exclusion patterns follow .gitignore-style conventions: a pattern without
// a path separator matches against the basename anywhere in the tree, a
// pattern with a separator matches against the full relative path key, and
// a trailing "/" marks a directory-prefix match. Matching is
// case-insensitive.

type exclusionMatchType int

const (
	exclusionPrefix exclusionMatchType = iota
	exclusionSuffix
	exclusionGlob
)

type exclusionPattern struct {
	pattern       string             // original pattern, for logging
	cleanPattern  string             // pattern stripped for prefix/suffix matching
	matchType     exclusionMatchType
	matchBasename bool // match against the basename instead of the full key
}

// exclusionSet holds categorized exclusion patterns for efficient matching.
type exclusionSet struct {
	// literals are exact full-path matches, the fastest to check.
	literals map[string]struct{}
	// basenameLiterals are exact basename matches (e.g. "node_modules").
	basenameLiterals map[string]struct{}
	// patterns require wildcard or prefix logic.
	patterns []exclusionPattern
}

// normalizeExclusionKey converts a path or pattern into the standardized,
// case-insensitive key format (forward slashes, lowercase).
func normalizeExclusionKey(p string) string {
	return strings.ToLower(filepath.ToSlash(p))
}

// makeExclusionSet analyzes and categorizes patterns so matching can use the
// cheapest check that applies.
func makeExclusionSet(rawPatterns []string) exclusionSet {
	set := exclusionSet{
		literals:         make(map[string]struct{}),
		basenameLiterals: make(map[string]struct{}),
	}

	for _, raw := range rawPatterns {
		p := normalizeExclusionKey(raw)
		if p == "" {
			continue
		}
		matchBasename := !strings.Contains(p, "/")

		switch {
		case !strings.ContainsAny(p, "*?[]"):
			if strings.HasSuffix(p, "/") {
				// "build/" is explicitly a full-path directory prefix.
				set.patterns = append(set.patterns, exclusionPattern{
					pattern:      p,
					cleanPattern: strings.TrimSuffix(p, "/"),
					matchType:    exclusionPrefix,
				})
			} else if matchBasename {
				set.basenameLiterals[p] = struct{}{}
			} else {
				set.literals[p] = struct{}{}
			}
		case strings.HasSuffix(p, "*") && !strings.ContainsAny(p[:len(p)-1], "*?[]"):
			// "temp_*" style prefix patterns.
			set.patterns = append(set.patterns, exclusionPattern{
				pattern:       p,
				cleanPattern:  strings.TrimSuffix(p, "*"),
				matchType:     exclusionPrefix,
				matchBasename: matchBasename,
			})
		case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?[]"):
			// "*.log" style suffix patterns.
			set.patterns = append(set.patterns, exclusionPattern{
				pattern:       p,
				cleanPattern:  p[1:],
				matchType:     exclusionSuffix,
				matchBasename: matchBasename,
			})
		default:
			set.patterns = append(set.patterns, exclusionPattern{
				pattern:       p,
				cleanPattern:  p,
				matchType:     exclusionGlob,
				matchBasename: matchBasename,
			})
		}
	}
	return set
}

// matches checks whether a relative path key matches any exclusion pattern.
func (es *exclusionSet) matches(relPathKey, basename string) bool {
	key := normalizeExclusionKey(relPathKey)
	base := normalizeExclusionKey(basename)

	if _, ok := es.literals[key]; ok {
		return true
	}
	if _, ok := es.basenameLiterals[base]; ok {
		return true
	}

	for _, p := range es.patterns {
		candidate := key
		if p.matchBasename {
			candidate = base
		}
		switch p.matchType {
		case exclusionPrefix:
			if !strings.HasPrefix(candidate, p.cleanPattern) {
				continue
			}
			// For directory prefixes ("build/"), avoid false positives on
			// siblings like "build-tools".
			if strings.HasSuffix(p.pattern, "/") &&
				candidate != p.cleanPattern && !strings.HasPrefix(candidate, p.cleanPattern+"/") {
				continue
			}
			return true
		case exclusionSuffix:
			if strings.HasSuffix(candidate, p.cleanPattern) {
				return true
			}
		case exclusionGlob:
			match, err := filepath.Match(p.cleanPattern, candidate)
			if err != nil {
				plog.Warn("Invalid exclusion pattern", "pattern", p.pattern, "error", err)
				continue
			}
			if match {
				return true
			}
		}
	}
	return false
}
