package main

import (
	"testing"

	"vmtest/cmd"
)

func TestVersion(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}

	version = "1.2.3"
	if version != "1.2.3" {
		t.Errorf("Expected version to be 1.2.3, got %s", version)
	}
	version = "dev"
}

func TestSetVersion(t *testing.T) {
	// SetVersion must accept every format the build injects.
	for _, v := range []string{"dev", "1.0.0", "v2.0.0-rc1", "2.3.4-beta.1"} {
		cmd.SetVersion(v)
	}
}
