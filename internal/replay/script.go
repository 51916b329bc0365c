// Package replay drives a branch tracking session from a YAML script. Scripts
// are deterministic: the same file always yields the same versions, slots and
// results, which makes them usable as executable examples and regression tests.
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Step operations.
const (
	OpRecord  = "record"
	OpFork    = "fork"
	OpResult  = "result"
	OpResults = "results"
	OpDiff    = "diff"
	OpLineage = "lineage"
	OpStats   = "stats"
)

// Sentinel errors.
var (
	// ErrInvalidScript indicates a script that failed to parse or validate.
	ErrInvalidScript = errors.New("invalid replay script")
	// ErrExpectationFailed indicates steps whose outcome did not match expect_error.
	ErrExpectationFailed = errors.New("replay expectations failed")
)

// Script is a replay file.
type Script struct {
	Name string `yaml:"name"`
	// MaxBranches overrides the configured capacity when positive.
	MaxBranches int `yaml:"max_branches" validate:"gte=0"`
	// CompressThreshold overrides the configured payload compression threshold.
	CompressThreshold string `yaml:"compress_threshold"`
	// ParamsSchema overrides the configured params schema reference.
	ParamsSchema string `yaml:"params_schema"`
	Steps        []Step `yaml:"steps"        validate:"required,min=1,dive"`
}

// Step is one operation against the session.
type Step struct {
	Op     string `yaml:"op"     validate:"required,oneof=record fork result results diff lineage stats"`
	Params any    `yaml:"params"`
	Result any    `yaml:"result"`
	// From is the version forked from, or the base version of a diff.
	From *int `yaml:"from" validate:"required_if=Op fork,required_if=Op diff"`
	// To is the version compared against From.
	To *int `yaml:"to" validate:"required_if=Op diff"`
	// Version defaults to the current version for results and lineage.
	Version *int `yaml:"version" validate:"required_if=Op result"`
	Slot    *int `yaml:"slot"    validate:"required_if=Op result"`
	// ExpectError is the error code the step is expected to fail with.
	ExpectError string `yaml:"expect_error" validate:"omitempty,oneof=capacity_exceeded not_found invalid_version invalid_params invalid_payload internal"` //nolint:lll // long line.

	// hasParams and hasResult record keys present in the script, including
	// keys whose value is null.
	hasParams bool
	hasResult bool
}

// stepKeys holds the mapping keys a step accepts.
var stepKeys = yamlKeys(reflect.TypeFor[Step]())

func yamlKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool, t.NumField())

	for i := range t.NumField() {
		field := t.Field(i)

		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if !field.IsExported() || name == "" || name == "-" {
			continue
		}

		keys[name] = true
	}

	return keys
}

// UnmarshalYAML decodes a step mapping and rejects unknown keys. A params or
// result key counts as given even when its value is null.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}

	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step must be a mapping", node.Line)
	}

	var hasParams, hasResult bool

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !stepKeys[key.Value] {
			return fmt.Errorf("line %d: field %s not found in step", key.Line, key.Value)
		}

		switch key.Value {
		case "params":
			hasParams = true
		case "result":
			hasResult = true
		}
	}

	type rawStep Step

	var raw rawStep

	err := node.Decode(&raw)
	if err != nil {
		return err
	}

	*s = Step(raw)
	s.hasParams = hasParams
	s.hasResult = hasResult

	return nil
}

var scriptValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})
	v.RegisterStructValidation(validateStep, Step{})

	return v
}

// validateStep requires params and a result on recording steps. Falsy values
// and an explicit null in a script are accepted. In a Step built in code a nil
// value means the field is missing.
func validateStep(sl validator.StructLevel) {
	step, ok := sl.Current().Interface().(Step)
	if !ok || (step.Op != OpRecord && step.Op != OpFork) {
		return
	}

	if step.Params == nil && !step.hasParams {
		sl.ReportError(step.Params, "params", "Params", "required", "")
	}

	if step.Result == nil && !step.hasResult {
		sl.ReportError(step.Result, "result", "Result", "required", "")
	}
}

// Parse decodes and validates a script. Unknown fields are rejected.
func Parse(r io.Reader) (*Script, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var script Script

	err := decoder.Decode(&script)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	err = script.Validate()
	if err != nil {
		return nil, err
	}

	return &script, nil
}

// LoadFile reads and parses the script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay script: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Validate checks the script structure.
func (s *Script) Validate() error {
	err := scriptValidate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}

	return fmt.Errorf("%w: %s", ErrInvalidScript, strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}
