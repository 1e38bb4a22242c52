package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vpaa/eventcore/internal/eligibility"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Devices names the engines attached to the authority. Defaults to a
	// single device called "main".
	Devices []string `yaml:"devices,omitempty"`

	// Catalog is CUE source seeded into the authority before the flow.
	Catalog string `yaml:"catalog"`

	// QuizPolicy is the eligibility policy for every component.
	QuizPolicy string `yaml:"quiz_policy,omitempty"`

	// GraceWindow overrides the engines' grace window ("1m" by default).
	GraceWindow string `yaml:"grace_window,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation in the flow, or a group of operations run
// concurrently when Parallel is set.
type Step struct {
	Op     string `yaml:"op,omitempty"`
	Device string `yaml:"device,omitempty"`

	Event string         `yaml:"event,omitempty"`
	User  string         `yaml:"user,omitempty"`
	Email string         `yaml:"email,omitempty"`
	Name  string         `yaml:"name,omitempty"`
	Token string         `yaml:"token,omitempty"`
	Data  map[string]any `yaml:"data,omitempty"`

	// Target, Times and Mode configure the fail operation.
	Target string `yaml:"target,omitempty"`
	Times  int    `yaml:"times,omitempty"`
	Mode   string `yaml:"mode,omitempty"`

	// By is the advance duration, e.g. "90s".
	By string `yaml:"by,omitempty"`

	Parallel []Step `yaml:"parallel,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step. Unset fields are not checked.
type Expect struct {
	Error            string `yaml:"error,omitempty"`
	Status           string `yaml:"status,omitempty"`
	Duplicate        *bool  `yaml:"duplicate,omitempty"`
	AlreadyCheckedIn *bool  `yaml:"already_checked_in,omitempty"`
}

// Operation names.
const (
	OpJoin           = "join"
	OpScan           = "scan"
	OpMarkAttendance = "mark_attendance"
	OpEvaluate       = "evaluate"
	OpIssue          = "issue"
	OpIssuePending   = "issue_pending"
	OpCheckOut       = "check_out"
	OpRefresh        = "refresh"
	OpLag            = "lag"
	OpResume         = "resume"
	OpFail           = "fail"
	OpAdvance        = "advance"
)

// Failure modes for OpFail.
const (
	ModeDrop      = "drop"
	ModeLoseReply = "lose_reply"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// surface as errors instead of silently skipped checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(s.Devices) == 0 {
		s.Devices = []string{"main"}
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if _, err := eligibility.ParseQuizPolicy(s.QuizPolicy); err != nil {
		return err
	}
	if s.GraceWindow != "" {
		if _, err := time.ParseDuration(s.GraceWindow); err != nil {
			return fmt.Errorf("grace_window: %w", err)
		}
	}

	devices := make(map[string]bool, len(s.Devices))
	for _, d := range s.Devices {
		if devices[d] {
			return fmt.Errorf("duplicate device %q", d)
		}
		devices[d] = true
	}

	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step, devices); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, devices); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(at string, step Step, devices map[string]bool) error {
	if len(step.Parallel) > 0 {
		if step.Op != "" {
			return fmt.Errorf("%s: op and parallel are exclusive", at)
		}
		for i, sub := range step.Parallel {
			if len(sub.Parallel) > 0 {
				return fmt.Errorf("%s.parallel[%d]: parallel groups cannot nest", at, i)
			}
			if err := validateStep(fmt.Sprintf("%s.parallel[%d]", at, i), sub, devices); err != nil {
				return err
			}
		}
		return nil
	}
	if step.Device != "" && !devices[step.Device] {
		return fmt.Errorf("%s: unknown device %q", at, step.Device)
	}

	needIdentity := func() error {
		if step.Event == "" {
			return fmt.Errorf("%s: event is required for %s", at, step.Op)
		}
		if step.User == "" && step.Email == "" {
			return fmt.Errorf("%s: user or email is required for %s", at, step.Op)
		}
		return nil
	}

	switch step.Op {
	case OpJoin, OpMarkAttendance, OpIssue, OpCheckOut:
		return needIdentity()
	case OpEvaluate:
		if err := needIdentity(); err != nil {
			return err
		}
		if step.Data == nil {
			return fmt.Errorf("%s: data is required for evaluate", at)
		}
	case OpScan:
		if step.Event == "" || step.Token == "" {
			return fmt.Errorf("%s: event and token are required for scan", at)
		}
	case OpIssuePending:
		if step.Event == "" {
			return fmt.Errorf("%s: event is required for issue_pending", at)
		}
	case OpRefresh, OpLag, OpResume:
	case OpFail:
		if step.Target == "" || step.Times < 1 {
			return fmt.Errorf("%s: fail needs a target and times >= 1", at)
		}
		if step.Mode != "" && step.Mode != ModeDrop && step.Mode != ModeLoseReply {
			return fmt.Errorf("%s: unknown fail mode %q", at, step.Mode)
		}
	case OpAdvance:
		if _, err := time.ParseDuration(step.By); err != nil {
			return fmt.Errorf("%s: advance needs a duration: %w", at, err)
		}
	case "":
		return fmt.Errorf("%s: op is required", at)
	default:
		return fmt.Errorf("%s: unknown op %q", at, step.Op)
	}
	return nil
}
