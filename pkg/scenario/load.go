package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dev/bravebird/ui-verify/pkg/models"
)

// File is the on-disk layout of a scenario file. A file holds either a
// single scenario at the top level or a list under "scenarios".
type File struct {
	Scenarios []models.Scenario `yaml:"scenarios"`
}

// LoadFile reads and validates the scenarios in a YAML file.
// The placeholders {{base_url}} and {{output_dir}} are expanded from p.
func LoadFile(path string, p Params) ([]models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data, p)
}

// Parse decodes and validates scenarios from YAML
func Parse(data []byte, p Params) ([]models.Scenario, error) {
	data = expand(data, p)

	var top map[string]interface{}
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	var scenarios []models.Scenario
	if _, ok := top["scenarios"]; ok {
		var file File
		if err := decodeStrict(data, &file); err != nil {
			return nil, err
		}
		scenarios = file.Scenarios
	} else {
		var single models.Scenario
		if err := decodeStrict(data, &single); err != nil {
			return nil, err
		}
		scenarios = []models.Scenario{single}
	}

	if len(scenarios) == 0 {
		return nil, errors.New("scenario file defines no scenarios")
	}
	return validateAll(scenarios)
}

func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return nil
}

func validateAll(scenarios []models.Scenario) ([]models.Scenario, error) {
	var errs []error
	for _, sc := range scenarios {
		if err := Validate(sc); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return scenarios, nil
}

// Validate checks that every step carries the fields its type requires
func Validate(sc models.Scenario) error {
	if strings.TrimSpace(sc.Name) == "" {
		return errors.New("scenario: name is required")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %s: no steps", sc.Name)
	}

	for i, step := range sc.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("scenario %s: step %d (%s): %w", sc.Name, i+1, step.Type, err)
		}
	}
	return nil
}

func validateStep(step models.Step) error {
	switch step.Type {
	case models.StepSetViewport:
		if step.Viewport == nil || step.Viewport.Width <= 0 || step.Viewport.Height <= 0 {
			return errors.New("viewport width and height must be positive")
		}
	case models.StepNavigate:
		if step.URL == "" {
			return errors.New("url is required")
		}
	case models.StepClick, models.StepWaitSelector:
		if step.Selector == "" {
			return errors.New("selector is required")
		}
	case models.StepClickRole:
		if step.Role == "" || step.Name == "" {
			return errors.New("role and name are required")
		}
	case models.StepScreenshot:
		if step.Path == "" {
			return errors.New("path is required")
		}
	case models.StepWaitIdle, models.StepPrintContent, models.StepCaptureContent:
	default:
		return fmt.Errorf("unsupported step type %q", step.Type)
	}
	return nil
}

func expand(data []byte, p Params) []byte {
	r := strings.NewReplacer(
		"{{base_url}}", strings.TrimRight(p.BaseURL, "/"),
		"{{output_dir}}", p.OutputDir,
	)
	return []byte(r.Replace(string(data)))
}
