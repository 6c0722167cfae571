package instruction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
  "schema": "aeon.instructions",
  "version": "1.0",
  "process_name": "install",
  "tasks": [
    {"task": "system/preflight", "required": true},
    {"task": "system/install", "depends_on": ["system/preflight"], "config": {"mode": "full"}}
  ],
  "entry_point": {"task": "system/install", "method": "resolve"},
  "flows": {
    "interactive": [
      {"id": "preflight", "task": "system/preflight"},
      {"id": "install", "task": "system/install", "args": {"confirm": true}}
    ],
    "noninteractive": [
      {"id": "preflight", "task": "system/preflight"},
      {"id": "install", "task": "system/install"}
    ]
  },
  "refs": {"configs": {"base": "etc/base.yaml"}},
  "expected_files": [
    {"path": "library/index.json", "policy": "required_eventually"}
  ],
  "outputs": {"result": "runtime/last_result.json"}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSONDocument(t *testing.T) {
	doc, err := Load(writeFile(t, "install.instruct.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "install", doc.ProcessName)
	assert.Len(t, doc.Tasks, 2)
	assert.Equal(t, "system/install", doc.EntryPoint.Task)

	steps, ok := doc.Flow(FlowNoninteractive)
	require.True(t, ok)
	assert.Len(t, steps, 2)
}

func TestLoadYAMLDocument(t *testing.T) {
	yamlDoc := `schema: aeon.instructions
version: "1.0"
process_name: smoketest
tasks:
  - task: utils/config-handler
entry_point:
  task: utils/config-handler
  method: resolve
flows:
  noninteractive:
    - id: dump
      task: utils/config-handler
refs:
  configs: {}
`
	doc, err := Load(writeFile(t, "smoketest.instruct.yaml", yamlDoc))
	require.NoError(t, err)
	assert.Equal(t, "smoketest", doc.ProcessName)
}

func TestLoadUnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "doc.toml", "x = 1"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateRejects(t *testing.T) {
	base := func() *Document {
		return &Document{
			Schema:      SchemaTag,
			Version:     SchemaVersion,
			ProcessName: "p",
			Tasks:       []TaskEntry{{Task: "g/a"}},
			EntryPoint:  EntryPoint{Task: "g/a", Method: "resolve"},
			Flows: map[string][]FlowStep{
				FlowNoninteractive: {{ID: "s1", Task: "g/a"}},
			},
			Refs: Refs{Configs: map[string]string{}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Document)
		reason string
	}{
		{"wrong schema tag", func(d *Document) { d.Schema = "other.schema" }, "schema"},
		{"wrong version", func(d *Document) { d.Version = "2.0" }, "version"},
		{"missing process name", func(d *Document) { d.ProcessName = "" }, "process_name"},
		{"no tasks", func(d *Document) { d.Tasks = nil }, "tasks"},
		{"no entry point", func(d *Document) { d.EntryPoint.Task = "" }, "entry_point"},
		{"nil refs.configs", func(d *Document) { d.Refs.Configs = nil }, "refs.configs"},
		{"no flows", func(d *Document) { d.Flows = nil }, "flow"},
		{"duplicate task id", func(d *Document) { d.Tasks = append(d.Tasks, TaskEntry{Task: "g/a"}) }, "duplicate task"},
		{"duplicate step id", func(d *Document) {
			d.Flows[FlowNoninteractive] = append(d.Flows[FlowNoninteractive], FlowStep{ID: "s1", Task: "g/a"})
		}, "duplicate step"},
		{"unknown flow name", func(d *Document) { d.Flows["batch"] = nil }, "unknown flow"},
		{"bad unknown flag policy", func(d *Document) { d.UnknownFlagPolicy = "panic" }, "policy"},
		{"bad flag type", func(d *Document) { d.Flags = []FlagSpec{{Name: "x", Type: "duration"}} }, "type"},
		{"bad expected file policy", func(d *Document) {
			d.ExpectedFiles = []ExpectedFile{{Path: "a", Policy: "sometimes"}}
		}, "policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}

	t.Run("valid document passes", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}

func TestPathContainment(t *testing.T) {
	assert.NoError(t, CheckPathContained("etc/config.yaml"))
	assert.NoError(t, CheckPathContained("runtime/states"))

	for _, bad := range []string{"/etc/passwd", "../outside", "a/../../b", ""} {
		err := CheckPathContained(bad)
		var perr *PathSecurityError
		assert.ErrorAs(t, err, &perr, "path %q", bad)
	}
}

func TestCheckExpectedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "present.yaml"), []byte("x"), 0644))

	doc := &Document{
		ExpectedFiles: []ExpectedFile{
			{Path: "etc/present.yaml", Policy: PolicyRequiredNow},
			{Path: "etc/later.yaml", Policy: PolicyRequiredEventually},
			{Path: "etc/maybe.yaml", Policy: PolicyOptional},
		},
	}

	warnings, err := doc.CheckExpectedFiles(root)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "etc/later.yaml")

	doc.ExpectedFiles = append(doc.ExpectedFiles, ExpectedFile{Path: "etc/gone.yaml", Policy: PolicyRequiredNow})
	_, err = doc.CheckExpectedFiles(root)
	var ferr *ExpectedFileError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "etc/gone.yaml", ferr.Path)
}
