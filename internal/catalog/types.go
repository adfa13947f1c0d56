// Package catalog loads declarative test case definitions from XML files
// and prepares the concrete run list: filtering by platform, category,
// area, name, tag and priority, then expanding cases along setup
// configuration axes such as disk type or networking mode.
package catalog

import (
	"encoding/xml"
	"strconv"
	"strings"
)

const (
	// defaultMatchPriority is assumed for a case with no declared
	// priority when matching a priority filter.
	defaultMatchPriority = 1
	// undeclaredSortPriority is where cases with no declared priority
	// land in the run order: after the declared priorities.
	undeclaredSortPriority = 9
)

// SetupConfig holds the extensible key/value fields of a test case. The
// source XML allows arbitrary nested elements; nested keys are flattened
// with a dot separator ("Disk.Controller").
type SetupConfig map[string]string

// UnmarshalXML flattens the element's children into the map.
func (c *SetupConfig) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if *c == nil {
		*c = make(SetupConfig)
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := c.decodeElement(d, t.Name.Local, t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (c SetupConfig) decodeElement(d *xml.Decoder, key string, start xml.StartElement) error {
	var text strings.Builder
	hasChild := false
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			hasChild = true
			if err := c.decodeElement(d, key+"."+t.Name.Local, t); err != nil {
				return err
			}
		case xml.EndElement:
			if !hasChild {
				c[key] = strings.TrimSpace(text.String())
			}
			return nil
		}
	}
}

// Clone returns a deep copy of the map.
func (c SetupConfig) Clone() SetupConfig {
	clone := make(SetupConfig, len(c))
	for k, v := range c {
		clone[k] = v
	}
	return clone
}

// TestCase is one declarative test definition. Comma-separated list
// fields keep their raw form; use the *List accessors.
type TestCase struct {
	Name        string      `xml:"testName"`
	Category    string      `xml:"Category"`
	Area        string      `xml:"Area"`
	Platform    string      `xml:"Platform"`
	Tags        string      `xml:"Tags"`
	Priority    string      `xml:"Priority"`
	TestScript  string      `xml:"TestScript"`
	Files       string      `xml:"Files"`
	Timeout     int         `xml:"Timeout"`
	SetupConfig SetupConfig `xml:"SetupConfig"`

	// SourceFile is the XML file the case was loaded from, for duplicate
	// diagnostics.
	SourceFile string `xml:"-"`
}

// Clone returns a deep copy. Expanded siblings must never share object
// identity, so every clone gets its own SetupConfig map.
func (tc TestCase) Clone() TestCase {
	clone := tc
	clone.SetupConfig = tc.SetupConfig.Clone()
	return clone
}

// SetupType returns the case's setup type from its setup configuration.
func (tc TestCase) SetupType() string {
	return tc.SetupConfig["SetupType"]
}

// PlatformList returns the declared platforms.
func (tc TestCase) PlatformList() []string {
	return splitTrim(tc.Platform, ",")
}

// TagList returns the declared tags.
func (tc TestCase) TagList() []string {
	return splitTrim(tc.Tags, ",")
}

// FileList returns the dependency files shipped before the test script
// runs.
func (tc TestCase) FileList() []string {
	return splitTrim(tc.Files, ",")
}

// DeclaredPriority returns the parsed priority and whether one was
// declared.
func (tc TestCase) DeclaredPriority() (int, bool) {
	if tc.Priority == "" {
		return 0, false
	}
	p, err := strconv.Atoi(strings.TrimSpace(tc.Priority))
	if err != nil {
		return 0, false
	}
	return p, true
}

// SortPriority returns the priority used for run ordering. Cases without
// a declared priority sort after the declared ones.
func (tc TestCase) SortPriority() int {
	if p, ok := tc.DeclaredPriority(); ok {
		return p
	}
	return undeclaredSortPriority
}

func splitTrim(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
