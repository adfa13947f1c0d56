package catalog

import (
	"regexp"
	"strings"

	"vmtest/pkg/logging"
)

// Expansion describes one setup configuration axis to expand the selected
// test cases along.
type Expansion struct {
	// Axis is the SetupConfig key being expanded, e.g. "DiskType".
	Axis string
	// Value is the supplied value or comma list of values. Empty means
	// "expand whatever the case pre-declares".
	Value string
	// Default is applied when no value is supplied and the case does not
	// pre-declare the axis.
	Default string
	// Splitter separates values in Value and in pre-declared lists.
	// Defaults to ",".
	Splitter string
	// Force overwrites an incompatible pre-declared value instead of
	// dropping the case.
	Force bool
	// UpdateName appends the value to the case name of every clone so
	// names stay unique after a cross-product expansion.
	UpdateName bool
}

// Expand returns the working set produced by applying the expansion to
// the cases. A case is never silently discarded: every drop is logged
// with the constraint that caused it.
//
// Three modes, depending on the supplied value:
//   - no value: a pre-declared multi-value axis is split and the case is
//     cloned once per value; a single pre-declared value is normalized in
//     place; an absent one gets the default.
//   - one value: set directly where the axis is undeclared; pre-declared
//     cases are kept only when the value is contained in the declaration
//     (or Force is set), otherwise dropped with a warning.
//   - several values: cross product of {cases} x {values}, with the same
//     per-value containment rule.
func Expand(cases []TestCase, exp Expansion) []TestCase {
	if exp.Axis == "" {
		return cases
	}
	splitter := exp.Splitter
	if splitter == "" {
		splitter = ","
	}

	supplied := splitTrim(exp.Value, splitter)
	switch len(supplied) {
	case 0:
		return expandDeclared(cases, exp, splitter)
	case 1:
		return applySingle(cases, exp, supplied[0], splitter)
	default:
		return crossProduct(cases, exp, supplied, splitter)
	}
}

func expandDeclared(cases []TestCase, exp Expansion, splitter string) []TestCase {
	var out []TestCase
	for _, tc := range cases {
		declared := splitTrim(tc.SetupConfig[exp.Axis], splitter)
		switch len(declared) {
		case 0:
			if exp.Default != "" {
				tc = tc.Clone()
				tc.ensureSetupConfig()
				tc.SetupConfig[exp.Axis] = exp.Default
			}
			out = append(out, tc)
		case 1:
			// Normalize whitespace in place, no clone needed.
			tc = tc.Clone()
			tc.SetupConfig[exp.Axis] = declared[0]
			out = append(out, tc)
		default:
			for _, v := range declared {
				clone := tc.Clone()
				clone.SetupConfig[exp.Axis] = v
				if exp.UpdateName {
					clone.Name = clone.Name + "-" + v
				}
				out = append(out, clone)
			}
		}
	}
	return out
}

func applySingle(cases []TestCase, exp Expansion, value, splitter string) []TestCase {
	var out []TestCase
	for _, tc := range cases {
		declared := tc.SetupConfig[exp.Axis]
		if declared == "" {
			tc = tc.Clone()
			tc.ensureSetupConfig()
			tc.SetupConfig[exp.Axis] = value
			out = append(out, tc)
			continue
		}
		if !exp.Force && !declarationAllows(declared, value, splitter) {
			logging.Warn("Expander", "dropping %s: declared %s=%q does not allow %q", tc.Name, exp.Axis, declared, value)
			continue
		}
		tc = tc.Clone()
		tc.SetupConfig[exp.Axis] = value
		out = append(out, tc)
	}
	return out
}

func crossProduct(cases []TestCase, exp Expansion, values []string, splitter string) []TestCase {
	var out []TestCase
	for _, tc := range cases {
		declared := tc.SetupConfig[exp.Axis]
		for _, v := range values {
			if declared != "" && !exp.Force && !declarationAllows(declared, v, splitter) {
				logging.Warn("Expander", "dropping %s for value %q: declared %s=%q does not allow it", tc.Name, v, exp.Axis, declared)
				continue
			}
			clone := tc.Clone()
			clone.ensureSetupConfig()
			clone.SetupConfig[exp.Axis] = v
			if exp.UpdateName {
				clone.Name = clone.Name + "-" + v
			}
			out = append(out, clone)
		}
	}
	return out
}

// declarationAllows treats the pre-declared value as a splitter-delimited
// set of acceptable tokens. A token with the =~ prefix is a regex pattern
// rather than a literal.
func declarationAllows(declared, value, splitter string) bool {
	for _, token := range splitTrim(declared, splitter) {
		if pattern, ok := strings.CutPrefix(token, "=~"); ok {
			if re, err := regexp.Compile(pattern); err == nil && re.MatchString(value) {
				return true
			}
			continue
		}
		if strings.EqualFold(token, value) {
			return true
		}
	}
	return false
}

func (tc *TestCase) ensureSetupConfig() {
	if tc.SetupConfig == nil {
		tc.SetupConfig = make(SetupConfig)
	}
}
