package schema

// Workflow is the JSON/YAML-serializable workflow document consumed by the
// engine. Documents are validated before execution; the engine never sees a
// malformed workflow.
type Workflow struct {
	Name        string           `json:"name" yaml:"name"`
	Version     string           `json:"version" yaml:"version"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   map[string]Value `json:"variables,omitempty" yaml:"variables,omitempty"`
	Steps       []Step           `json:"steps" yaml:"steps"`
	Timeout     float64          `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds, 0 = none
	Retry       *RetryPolicy     `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnError     ErrorPolicy      `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	Tags        []string         `json:"tags,omitempty" yaml:"tags,omitempty"`

	// MaxStepVisits bounds how many times any single step may be entered in
	// one run. When > 0, next_step cycles are permitted (bounded iteration);
	// when 0, the validator rejects cycles outright.
	MaxStepVisits int `json:"max_step_visits,omitempty" yaml:"max_step_visits,omitempty"`
}

// Step is one unit of workflow work: a dispatched action, or a loop wrapper
// expanding into nested steps. A loop step may omit Action.
type Step struct {
	Name        string           `json:"name" yaml:"name"`
	Action      string           `json:"action,omitempty" yaml:"action,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Selector    string           `json:"selector,omitempty" yaml:"selector,omitempty"`
	Value       Value            `json:"value,omitempty" yaml:"value,omitempty"`
	Timeout     float64          `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds
	Retry       *RetryPolicy     `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnError     ErrorPolicy      `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	Condition   ConditionSet     `json:"condition,omitempty" yaml:"condition,omitempty"`
	Loop        *Loop            `json:"loop,omitempty" yaml:"loop,omitempty"`
	Variables   map[string]Value `json:"variables,omitempty" yaml:"variables,omitempty"`
	NextStep    string           `json:"next_step,omitempty" yaml:"next_step,omitempty"`

	// OutputVar names a variable that receives the dispatch output. Extract,
	// when set, is a jq expression applied to the output first.
	OutputVar string `json:"output_var,omitempty" yaml:"output_var,omitempty"`
	Extract   string `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// RetryPolicy configures retry behavior. Delay is a fixed pause between
// attempts; there is no backoff curve.
type RetryPolicy struct {
	MaxAttempts int     `json:"max_attempts" yaml:"max_attempts"`
	Delay       float64 `json:"delay,omitempty" yaml:"delay,omitempty"` // seconds
}

// Retry defaults applied when a policy or its fields are absent.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1.0 // seconds
)

// Attempts returns the effective attempt budget.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// DelaySeconds returns the effective inter-attempt delay.
func (p *RetryPolicy) DelaySeconds() float64 {
	if p == nil {
		return DefaultRetryDelay
	}
	if p.Delay < 0 {
		return 0
	}
	return p.Delay
}

// ErrorPolicy selects what happens when a step fails.
type ErrorPolicy string

const (
	ErrorPolicyStop     ErrorPolicy = "stop"
	ErrorPolicyContinue ErrorPolicy = "continue"
	ErrorPolicyRetry    ErrorPolicy = "retry"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpMatches        Operator = "matches"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
	OpIsTrue         Operator = "is_true"
	OpIsFalse        Operator = "is_false"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
)

// Operators lists every supported comparison operator.
var Operators = []Operator{
	OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
	OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpMatches,
	OpExists, OpNotExists, OpIsTrue, OpIsFalse, OpIn, OpNotIn,
}

// Condition is a boolean predicate gating step execution. Either the
// structured form (Left/Operator/Right) or the expression form
// (Expression/Engine) is used; the structured form wins when both are set.
type Condition struct {
	Left     Value    `json:"left,omitempty" yaml:"left,omitempty"`
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Right    Value    `json:"right,omitempty" yaml:"right,omitempty"`

	// Expression is a boolean expression evaluated against the current
	// variables. Engine selects the evaluator: "expr" (default) or "cel".
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
	Engine     string `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// LoopType tags the Loop variant.
type LoopType string

const (
	LoopFor     LoopType = "for"
	LoopForEach LoopType = "for_each"
	LoopWhile   LoopType = "while"
	LoopDoWhile LoopType = "do_while"
	LoopUntil   LoopType = "until"
	LoopRepeat  LoopType = "repeat"
)

// DefaultMaxIterations is the safety fence for condition-driven loops.
const DefaultMaxIterations = 1000

// Loop is a repeated-execution construct wrapping a nested action list.
// Fields are interpreted per Type:
//
//	for:      Var, Start, End (inclusive), Step (default 1)
//	for_each: Var, Items (JSON array, JSON-array string, or comma-split string)
//	while:    Condition tested before each pass
//	do_while: Condition tested after each pass
//	until:    Condition tested after each pass, loops while false
//	repeat:   Times passes, unconditionally
type Loop struct {
	Type          LoopType     `json:"type" yaml:"type"`
	Var           string       `json:"var,omitempty" yaml:"var,omitempty"`
	Start         float64      `json:"start,omitempty" yaml:"start,omitempty"`
	End           float64      `json:"end,omitempty" yaml:"end,omitempty"`
	Step          float64      `json:"step,omitempty" yaml:"step,omitempty"`
	Items         Value        `json:"items,omitempty" yaml:"items,omitempty"`
	Condition     ConditionSet `json:"condition,omitempty" yaml:"condition,omitempty"`
	Times         int          `json:"times,omitempty" yaml:"times,omitempty"`
	MaxIterations int          `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Actions       []Step       `json:"actions" yaml:"actions"`
}

// IterationFence returns the effective safety bound for condition-driven
// loop types.
func (l *Loop) IterationFence() int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return DefaultMaxIterations
}
