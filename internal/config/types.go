// Package config loads and validates the YAML run definition: which
// machines to test, where the test case catalog lives, which cases to
// select, and how to expand them.
package config

import "time"

// Config is the top level run definition.
type Config struct {
	// Targets are the machines the selected test cases run against.
	Targets []TargetConfig `yaml:"targets"`
	// Catalog locates the test case definitions and their scripts.
	Catalog CatalogConfig `yaml:"catalog"`
	// Criteria filters the loaded test case universe.
	Criteria CriteriaConfig `yaml:"criteria,omitempty"`
	// Expansions are applied to the selected cases in order.
	Expansions []ExpansionConfig `yaml:"expansions,omitempty"`
	// Run tunes execution behavior.
	Run RunConfig `yaml:"run,omitempty"`
}

// TargetConfig describes one remote machine.
type TargetConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	// PrivateKeyPath points to a PEM key tried before the password.
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty"`
}

// CatalogConfig locates test definitions.
type CatalogConfig struct {
	// Paths are XML files or directories of XML files.
	Paths []string `yaml:"paths"`
	// ScriptsDir is where the test scripts and their dependency files
	// live locally.
	ScriptsDir string `yaml:"scriptsDir,omitempty"`
}

// CriteriaConfig mirrors catalog.Criteria in YAML form.
type CriteriaConfig struct {
	Platform  string   `yaml:"platform,omitempty"`
	Category  string   `yaml:"category,omitempty"`
	Area      string   `yaml:"area,omitempty"`
	Names     []string `yaml:"names,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Priority  string   `yaml:"priority,omitempty"`
	SetupType string   `yaml:"setupType,omitempty"`
	Excludes  []string `yaml:"excludes,omitempty"`
}

// ExpansionConfig mirrors catalog.Expansion in YAML form.
type ExpansionConfig struct {
	Axis       string `yaml:"axis"`
	Value      string `yaml:"value,omitempty"`
	Default    string `yaml:"default,omitempty"`
	Splitter   string `yaml:"splitter,omitempty"`
	Force      bool   `yaml:"force,omitempty"`
	UpdateName bool   `yaml:"updateName,omitempty"`
}

// RunConfig tunes execution.
type RunConfig struct {
	// CaseTimeout bounds one test case when the case declares no
	// timeout of its own.
	CaseTimeout time.Duration `yaml:"caseTimeout,omitempty"`
	// MaxRetries is the per-command attempt budget.
	MaxRetries int `yaml:"maxRetries,omitempty"`
	// ReportPath receives the structured JSON report. Empty disables it.
	ReportPath string `yaml:"reportPath,omitempty"`
	// DisableCompression turns off batched tarball uploads.
	DisableCompression bool `yaml:"disableCompression,omitempty"`
}

// DefaultCaseTimeout applies when neither the run config nor the test
// case declares a timeout.
const DefaultCaseTimeout = 15 * time.Minute
