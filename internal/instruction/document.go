package instruction

// SchemaTag identifies AEON instruction documents.
const SchemaTag = "aeon.instructions"

// SchemaVersion is the supported instruction schema version.
const SchemaVersion = "1.0"

// Flow mode names. Flow selection only decides which steps the orchestrator
// runs, never the lifecycle algorithm.
const (
	FlowInteractive    = "interactive"
	FlowNoninteractive = "noninteractive"
)

// Expected-file policies.
const (
	PolicyRequiredNow        = "required_now"
	PolicyRequiredEventually = "required_eventually"
	PolicyOptional           = "optional"
)

// Unknown-flag policies an entry document may declare.
const (
	UnknownFlagWarn   = "warn"
	UnknownFlagError  = "error"
	UnknownFlagIgnore = "ignore"
)

// TaskEntry configures one task for this process: which unit runs it and the
// process-level configuration merged over the unit's own defaults.
type TaskEntry struct {
	Task         string                 `json:"task"`
	DependsOn    []string               `json:"depends_on,omitempty"`
	Defaults     map[string]interface{} `json:"defaults,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty"`
	Hooks        map[string]string      `json:"hooks,omitempty"`
	ForceExecute *bool                  `json:"force_execute,omitempty"`
	Required     bool                   `json:"required,omitempty"`
}

// FlowStep is one step of a named flow.
type FlowStep struct {
	ID     string                 `json:"id"`
	Task   string                 `json:"task"`
	Method string                 `json:"method,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// EntryPoint names the task and method the run starts from.
type EntryPoint struct {
	Task   string `json:"task"`
	Method string `json:"method"`
}

// ExpectedFile declares a file the process expects relative to the
// installation root.
type ExpectedFile struct {
	Path   string `json:"path"`
	Policy string `json:"policy"`
}

// Refs holds references to auxiliary documents, keyed by id.
type Refs struct {
	Configs map[string]string `json:"configs"`
}

// Outputs routes run artifacts.
type Outputs struct {
	Result string `json:"result,omitempty"`
}

// FlagSpec is an additional command-line flag declared by the entry document,
// parsed against this schema.
type FlagSpec struct {
	Name        string      `json:"name"`
	Aliases     []string    `json:"aliases,omitempty"`
	Type        string      `json:"type"` // bool, string, int, float
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Document is a parsed instruction document.
type Document struct {
	Schema      string `json:"schema"`
	Version     string `json:"version"`
	ProcessName string `json:"process_name"`

	Tasks      []TaskEntry           `json:"tasks"`
	EntryPoint EntryPoint            `json:"entry_point"`
	Flows      map[string][]FlowStep `json:"flows"`
	Refs       Refs                  `json:"refs"`

	ExpectedFiles []ExpectedFile `json:"expected_files,omitempty"`
	Outputs       Outputs        `json:"outputs,omitempty"`

	Flags             []FlagSpec `json:"flags,omitempty"`
	UnknownFlagPolicy string     `json:"unknown_flag_policy,omitempty"`
}

// Flow returns the steps declared for the given mode.
func (d *Document) Flow(mode string) ([]FlowStep, bool) {
	if steps, ok := d.Flows[mode]; ok {
		return steps, true
	}
	return nil, false
}
