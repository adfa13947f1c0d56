package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
targets:
  - host: vm-1.example.com
    username: azureuser
    password: hunter2
  - host: vm-2.example.com
    port: 2222
    username: azureuser
    privateKeyPath: /keys/id_rsa
catalog:
  paths:
    - testcases/core.xml
  scriptsDir: testscripts
criteria:
  platform: Azure
  tags: [boot, sanity]
expansions:
  - axis: DiskType
    value: SCSI,NVMe
    updateName: true
run:
  caseTimeout: 30m
  maxRetries: 5
  reportPath: report.json
`)

	config, err := Load(path)
	require.NoError(t, err)

	require.Len(t, config.Targets, 2)
	assert.Equal(t, 22, config.Targets[0].Port, "default port applied")
	assert.Equal(t, 2222, config.Targets[1].Port)
	assert.Equal(t, "Azure", config.Criteria.Platform)
	assert.Equal(t, []string{"boot", "sanity"}, config.Criteria.Tags)
	require.Len(t, config.Expansions, 1)
	assert.True(t, config.Expansions[0].UpdateName)
	assert.Equal(t, 30*time.Minute, config.Run.CaseTimeout)
	assert.Equal(t, 5, config.Run.MaxRetries)
}

func TestLoad_DefaultCaseTimeout(t *testing.T) {
	path := writeConfig(t, `
targets:
  - host: vm-1
    username: root
    password: x
catalog:
  paths: [cases.xml]
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultCaseTimeout, config.Run.CaseTimeout)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no targets",
			content: "catalog:\n  paths: [cases.xml]\n",
			wantErr: "at least one target",
		},
		{
			name:    "missing host",
			content: "targets:\n  - username: root\n    password: x\ncatalog:\n  paths: [cases.xml]\n",
			wantErr: "host is required",
		},
		{
			name:    "missing credentials",
			content: "targets:\n  - host: vm-1\n    username: root\ncatalog:\n  paths: [cases.xml]\n",
			wantErr: "password or private key",
		},
		{
			name:    "no catalog",
			content: "targets:\n  - host: vm-1\n    username: root\n    password: x\n",
			wantErr: "catalog path",
		},
		{
			name:    "expansion without axis",
			content: "targets:\n  - host: vm-1\n    username: root\n    password: x\ncatalog:\n  paths: [cases.xml]\nexpansions:\n  - value: SCSI\n",
			wantErr: "expansion axis",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeConfig(t, test.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
