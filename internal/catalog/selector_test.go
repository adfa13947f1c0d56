package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectorFixture() []TestCase {
	return []TestCase{
		{Name: "VERIFY-BOOT", Category: "Functional", Area: "CORE", Platform: "Azure,HyperV", Tags: "boot,sanity", Priority: "1", SetupConfig: SetupConfig{"SetupType": "OneVM"}},
		{Name: "VERIFY-DISK-HOTADD", Category: "Functional", Area: "STORAGE", Platform: "Azure", Tags: "disk", Priority: "2", SetupConfig: SetupConfig{"SetupType": "OneVMTwoDisks"}},
		{Name: "PERF-NTTTCP", Category: "Performance", Area: "NETWORK", Platform: "Azure", Tags: "network,perf", Priority: "3", SetupConfig: SetupConfig{"SetupType": "TwoVM"}},
		{Name: "STRESS-REBOOT", Category: "Stress", Area: "CORE", Platform: "HyperV", Tags: "reboot"},
	}
}

func caseNames(cases []TestCase) []string {
	var names []string
	for _, tc := range cases {
		names = append(names, tc.Name)
	}
	return names
}

func TestSelect_NoCriteriaReturnsEverything(t *testing.T) {
	cases := selectorFixture()
	selected := Select(cases, Criteria{})
	assert.Len(t, selected, len(cases))
}

func TestSelect_ResultIsSubsetSatisfyingFilters(t *testing.T) {
	selected := Select(selectorFixture(), Criteria{Platform: "Azure", Category: "Functional"})
	require.NotEmpty(t, selected)
	for _, tc := range selected {
		assert.Contains(t, tc.PlatformList(), "Azure")
		assert.Equal(t, "Functional", tc.Category)
	}
	assert.ElementsMatch(t, []string{"VERIFY-BOOT", "VERIFY-DISK-HOTADD"}, caseNames(selected))
}

func TestSelect_PlatformContainment(t *testing.T) {
	selected := Select(selectorFixture(), Criteria{Platform: "HyperV"})
	assert.ElementsMatch(t, []string{"VERIFY-BOOT", "STRESS-REBOOT"}, caseNames(selected))
}

func TestSelect_AllKeywordMatchesEverything(t *testing.T) {
	selected := Select(selectorFixture(), Criteria{Platform: "All", Category: "all", Area: "All"})
	assert.Len(t, selected, len(selectorFixture()))
}

func TestSelect_ExplicitNamesBypassOtherDimensions(t *testing.T) {
	// PERF-NTTTCP is Performance but the category filter says
	// Functional; the explicit name still wins.
	selected := Select(selectorFixture(), Criteria{
		Names:    []string{"PERF-NTTTCP"},
		Category: "Functional",
		Priority: "1",
	})
	assert.Equal(t, []string{"PERF-NTTTCP"}, caseNames(selected))
}

func TestSelect_TagIntersection(t *testing.T) {
	selected := Select(selectorFixture(), Criteria{Tags: []string{"perf", "reboot"}})
	assert.ElementsMatch(t, []string{"PERF-NTTTCP", "STRESS-REBOOT"}, caseNames(selected))
}

func TestSelect_PriorityDefaultsToOneWhenUndeclared(t *testing.T) {
	// STRESS-REBOOT has no declared priority and is treated as priority
	// 1 for matching purposes.
	selected := Select(selectorFixture(), Criteria{Priority: "1"})
	assert.ElementsMatch(t, []string{"VERIFY-BOOT", "STRESS-REBOOT"}, caseNames(selected))
}

func TestSelect_SetupTypeContainsMatch(t *testing.T) {
	selected := Select(selectorFixture(), Criteria{SetupType: "OneVM"})
	assert.ElementsMatch(t, []string{"VERIFY-BOOT", "VERIFY-DISK-HOTADD"}, caseNames(selected))
}

func TestSelect_ExcludeExactAndWildcard(t *testing.T) {
	selected := Select(selectorFixture(), Criteria{Excludes: []string{"VERIFY-BOOT"}})
	assert.NotContains(t, caseNames(selected), "VERIFY-BOOT")

	selected = Select(selectorFixture(), Criteria{Excludes: []string{"VERIFY-*"}})
	assert.ElementsMatch(t, []string{"PERF-NTTTCP", "STRESS-REBOOT"}, caseNames(selected))

	// A leading * means "anything, then the rest of the pattern".
	selected = Select(selectorFixture(), Criteria{Excludes: []string{"*-NTTTCP"}})
	assert.NotContains(t, caseNames(selected), "PERF-NTTTCP")
	assert.Len(t, selected, 3)
}

func TestSelect_OrderIsPriorityThenName(t *testing.T) {
	cases := []TestCase{
		{Name: "T1"},                    // undeclared priority sorts as 9
		{Name: "T2", Priority: "1"},
		{Name: "B-CASE", Priority: "2"},
		{Name: "A-CASE", Priority: "2"},
	}
	selected := Select(cases, Criteria{})
	assert.Equal(t, []string{"T2", "A-CASE", "B-CASE", "T1"}, caseNames(selected))
}
