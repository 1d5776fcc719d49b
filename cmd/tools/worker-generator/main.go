// cmd/tools/worker-generator/main.go
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"agribot-workers/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	Description  string
	Timeout      string
	InputFields  string
	OutputFields string
	ErrorCodes   []string
}

// schemaProperties extracts properties from a JSON schema object
func schemaProperties(schema map[string]interface{}) map[string]interface{} {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}) string {
	switch jsonType {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

// fieldName turns a camelCase property into an exported Go name; a trailing
// "Id" becomes "ID".
func fieldName(prop string) string {
	if prop == "" {
		return prop
	}
	name := strings.ToUpper(prop[:1]) + prop[1:]
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	return name
}

// generateStructFields renders struct fields for the schema properties in
// name order.
func generateStructFields(schema map[string]interface{}) string {
	properties := schemaProperties(schema)
	names := make([]string, 0, len(properties))
	for prop := range properties {
		names = append(names, prop)
	}
	sort.Strings(names)

	fields := make([]string, 0, len(names))
	for _, prop := range names {
		details, ok := properties[prop].(map[string]interface{})
		if !ok {
			continue
		}
		fields = append(fields, fmt.Sprintf("\t%s %s `json:\"%s\"`", fieldName(prop), goTypeFromJSONType(details["type"]), prop))
	}
	return strings.Join(fields, "\n")
}

// packageName follows the existing workers: "record-turn" becomes "recordturn".
func packageName(taskType string) string {
	return strings.ReplaceAll(taskType, "-", "")
}

const configTemplate = `// internal/workers/conversation/{{ .TaskType }}/config.go
package {{ .PackageName }}

import (
	"time"

	"agribot-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{Timeout: {{ .Timeout }}}
	if cfg == nil {
		return c
	}
	if wcfg := config.GetWorkerConfig(cfg, TaskType); wcfg.Timeout > 0 {
		c.Timeout = config.GetDuration(wcfg.Timeout)
	}
	return c
}
`

const modelsTemplate = `// internal/workers/conversation/{{ .TaskType }}/models.go
package {{ .PackageName }}

type Input struct {
{{ .InputFields }}
}

type Output struct {
{{ .OutputFields }}
}
`

const handlerTemplate = `// internal/workers/conversation/{{ .TaskType }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"time"

	"agribot-workers/internal/common/camunda"
	apperrors "agribot-workers/internal/common/errors"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/metrics"
	"agribot-workers/internal/common/observability"
	"agribot-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "{{ .TaskType }}"

// Handler runs {{ .Name }} jobs. {{ .Description }}
// Error codes: {{ join .ErrorCodes ", " }}.
type Handler struct {
	config   *Config
	registry *registry.ActivityRegistry
	obs      *observability.Observability
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, reg *registry.ActivityRegistry, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = &observability.Observability{}
	}
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		registry: reg,
		obs:      obs,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err == nil {
		var output *Output
		if output, err = h.Execute(ctx, input); err == nil {
			if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
				h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
				return
			}
			metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
			h.obs.RecordJobProcessed(ctx, TaskType, "completed")
			return
		}
	}

	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.errors.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	if h.registry != nil {
		variables, err := job.GetVariablesAsMap()
		if err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
		if err := h.registry.ValidateInput(TaskType, variables); err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError("parse input: " + err.Error())
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, span := h.obs.StartSpan(ctx, "conversation.{{ snake .TaskType }}")
	defer span.End()

	return &Output{}, nil
}
`

const testTemplate = `// internal/workers/conversation/{{ .TaskType }}/handler_test.go
package {{ .PackageName }}

import (
	"context"
	"testing"
	"time"

	"agribot-workers/internal/common/logger"

	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(&Config{Timeout: 5 * time.Second}, nil, nil, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	require.NotNil(t, out)
}
`

func render(data WorkerData) (map[string][]byte, error) {
	funcMap := template.FuncMap{
		"join":  strings.Join,
		"snake": func(s string) string { return strings.ReplaceAll(s, "-", "_") },
	}
	templates := map[string]string{
		"config.go":       configTemplate,
		"models.go":       modelsTemplate,
		"handler.go":      handlerTemplate,
		"handler_test.go": testTemplate,
	}

	files := make(map[string][]byte, len(templates))
	for filename, tmplStr := range templates {
		tmpl, err := template.New(filename).Funcs(funcMap).Parse(tmplStr)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", filename, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("execute template %s: %w", filename, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", filename, err)
		}
		files[filename] = src
	}
	return files, nil
}

// timeoutLiteral turns a registry timeout such as "10s" into Go source.
func timeoutLiteral(timeout string) string {
	switch {
	case strings.HasSuffix(timeout, "ms"):
		return strings.TrimSuffix(timeout, "ms") + " * time.Millisecond"
	case strings.HasSuffix(timeout, "s"):
		return strings.TrimSuffix(timeout, "s") + " * time.Second"
	case strings.HasSuffix(timeout, "m"):
		return strings.TrimSuffix(timeout, "m") + " * time.Minute"
	}
	return "10 * time.Second"
}

func dataFor(activity *registry.Activity) WorkerData {
	return WorkerData{
		Name:         activity.DisplayName,
		PackageName:  packageName(activity.TaskType),
		TaskType:     activity.TaskType,
		Description:  activity.Description,
		Timeout:      timeoutLiteral(activity.Timeout),
		InputFields:  generateStructFields(activity.InputSchema),
		OutputFields: generateStructFields(activity.OutputSchema),
		ErrorCodes:   activity.ErrorCodes,
	}
}

func main() {
	taskType := flag.String("taskType", "", "Task type from the registry (e.g., end-conversation)")
	outputDir := flag.String("output", "./internal/workers/conversation/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "pkg/registry/activities.json", "Path to the activity registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *taskType == "" {
		fmt.Println("Usage: worker-generator --taskType <type> [--output <dir>] [--registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/worker-generator --taskType end-conversation")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}

	activity, ok := reg.Find(*taskType)
	if !ok {
		fmt.Printf("Task type '%s' not found in registry %s\n", *taskType, *registryPath)
		os.Exit(1)
	}

	files, err := render(dataFor(activity))
	if err != nil {
		fmt.Printf("Error rendering worker: %v\n", err)
		os.Exit(1)
	}

	workerDir := filepath.Join(*outputDir, activity.TaskType)
	if err := os.MkdirAll(workerDir, 0755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(workerDir, name)
		if _, err := os.Stat(path); err == nil && !*force {
			fmt.Printf("skipped %s (exists)\n", path)
			continue
		}
		if err := os.WriteFile(path, files[name], 0644); err != nil {
			fmt.Printf("Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("generated %s\n", path)
	}

	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement Execute in handler.go\n")
	fmt.Printf("  2. Register the handler in cmd/worker-manager/main.go\n")
	fmt.Printf("  3. Add a workers.%s entry to configs/config.yaml\n", activity.TaskType)
}
