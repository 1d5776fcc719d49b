// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"agribot-workers/internal/common/validation"
)

//go:embed activities.json
var builtin []byte

var ErrUnknownActivity = errors.New("UNKNOWN_ACTIVITY")

var (
	defaultOnce sync.Once
	defaultReg  *ActivityRegistry
	defaultErr  error
)

// Default returns the registry shipped with the binary.
func Default() (*ActivityRegistry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Parse(builtin)
		if defaultErr == nil {
			defaultErr = defaultReg.Validate()
		}
	})
	return defaultReg, defaultErr
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return &reg, nil
}

// Find looks an activity up by task type.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate checks required fields, id naming and uniqueness.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, activity := range r.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if err := validation.ValidateActivityNaming(activity.ID); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}
		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if taskTypes[activity.TaskType] {
			return fmt.Errorf("duplicate task type: %s", activity.TaskType)
		}
		taskTypes[activity.TaskType] = true
		if activity.Category == "" {
			return fmt.Errorf("activity %s missing required field: Category", activity.ID)
		}
	}
	return nil
}

// ValidateInput checks job variables against the activity's input schema.
func (r *ActivityRegistry) ValidateInput(taskType string, variables map[string]interface{}) error {
	activity, ok := r.Find(taskType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActivity, taskType)
	}
	if variables == nil {
		variables = map[string]interface{}{}
	}

	result, err := validation.ValidateDocument(activity.InputSchema, variables)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("input validation failed: %s", strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}
