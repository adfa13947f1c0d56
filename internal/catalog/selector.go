package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"vmtest/pkg/logging"
)

// Criteria filters the loaded test case universe. Every dimension is
// independently optional: empty (or "All") matches everything.
type Criteria struct {
	// Platform must be contained in the case's declared platform list.
	Platform string
	Category string
	Area     string
	// Names selects cases explicitly. An explicit name bypasses the
	// category, area, tag and priority dimensions entirely.
	Names []string
	// Tags matches when any requested tag appears in the case's tag list.
	Tags []string
	// Priority matches the declared priority exactly. A case with no
	// declared priority is treated as priority 1, with a warning.
	Priority string
	// SetupType is a regex-style contains match against the case's setup
	// type.
	SetupType string
	// Excludes removes cases by exact name or wildcard pattern. A
	// pattern is treated as a wildcard when it contains any of
	// ^ . [ ] ? + *; a leading * is rewritten to .* first.
	Excludes []string
}

// wildcardChars detection mirrors the exclusion syntax of existing run
// definitions.
const wildcardChars = "^.[]?+*"

// Select filters cases by the criteria and returns them in deterministic
// run order: priority ascending (undeclared priority sorts as 9, below
// the declared ones), then name ascending. Reproducible CI logs depend on
// the ordering being stable.
func Select(cases []TestCase, criteria Criteria) []TestCase {
	var selected []TestCase
	for _, tc := range cases {
		if pattern, ok := matchExclude(tc.Name, criteria.Excludes); ok {
			logging.Info("Selector", "excluding %s (matched %q)", tc.Name, pattern)
			continue
		}
		if !matchPlatform(tc, criteria.Platform) {
			continue
		}
		if len(criteria.Names) > 0 {
			// An explicit name always wins over the other dimensions.
			if !containsFold(criteria.Names, tc.Name) {
				continue
			}
		} else {
			if !matchDimension(tc.Category, criteria.Category) {
				continue
			}
			if !matchDimension(tc.Area, criteria.Area) {
				continue
			}
			if !matchTags(tc, criteria.Tags) {
				continue
			}
			if !matchPriority(tc, criteria.Priority) {
				continue
			}
			if !matchSetupType(tc, criteria.SetupType) {
				continue
			}
		}
		selected = append(selected, tc)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		pi, pj := selected[i].SortPriority(), selected[j].SortPriority()
		if pi != pj {
			return pi < pj
		}
		return selected[i].Name < selected[j].Name
	})

	logging.Info("Selector", "selected %d of %d test cases", len(selected), len(cases))
	return selected
}

func isAll(s string) bool {
	return s == "" || strings.EqualFold(s, "All")
}

func matchDimension(declared, want string) bool {
	if isAll(want) {
		return true
	}
	return strings.EqualFold(declared, want)
}

func matchPlatform(tc TestCase, want string) bool {
	if isAll(want) {
		return true
	}
	platforms := tc.PlatformList()
	if len(platforms) == 0 {
		return true
	}
	return containsFold(platforms, want)
}

func matchTags(tc TestCase, want []string) bool {
	if len(want) == 0 {
		return true
	}
	declared := tc.TagList()
	for _, tag := range want {
		if containsFold(declared, tag) {
			return true
		}
	}
	return false
}

func matchPriority(tc TestCase, want string) bool {
	if isAll(want) {
		return true
	}
	wanted, err := strconv.Atoi(strings.TrimSpace(want))
	if err != nil {
		logging.Warn("Selector", "ignoring unparsable priority filter %q", want)
		return true
	}
	declared, ok := tc.DeclaredPriority()
	if !ok {
		logging.Warn("Selector", "test case %s declares no priority, assuming %d", tc.Name, defaultMatchPriority)
		declared = defaultMatchPriority
	}
	return declared == wanted
}

func matchSetupType(tc TestCase, want string) bool {
	if isAll(want) {
		return true
	}
	setupType := tc.SetupType()
	if re, err := regexp.Compile("(?i)" + want); err == nil {
		return re.MatchString(setupType)
	}
	return strings.Contains(strings.ToLower(setupType), strings.ToLower(want))
}

// matchExclude reports whether name matches any exclusion pattern, and
// which one.
func matchExclude(name string, excludes []string) (string, bool) {
	for _, pattern := range excludes {
		if pattern == "" {
			continue
		}
		if !strings.ContainsAny(pattern, wildcardChars) {
			if strings.EqualFold(name, pattern) {
				return pattern, true
			}
			continue
		}
		expr := pattern
		if strings.HasPrefix(expr, "*") {
			expr = ".*" + expr[1:]
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			logging.Warn("Selector", "ignoring invalid exclusion pattern %q: %v", pattern, err)
			continue
		}
		if re.MatchString(name) {
			return pattern, true
		}
	}
	return "", false
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}
