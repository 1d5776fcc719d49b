// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"agribot-workers/pkg/registry"
)

const defaultRegistryPath = "pkg/registry/activities.json"

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, listCmd, checkCmd} {
		fs.StringVar(&registryPath, "path", defaultRegistryPath, "Path to registry file")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Activity ID (e.g., conversation.session.end)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., End Conversation)")
	description := addCmd.String("description", "", "Description")
	category := addCmd.String("category", "conversation", "Category")
	taskType := addCmd.String("taskType", "", "Camunda Task Type (e.g., end-conversation)")
	version := addCmd.String("version", "1.0.0", "Version")
	timeout := addCmd.String("timeout", "10s", "Job timeout (Go duration)")
	retries := addCmd.Int("retries", 3, "Retries before an incident is raised")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Activity ID to update")
	field := updateCmd.String("field", "", "Field to update (version, timeout, retries, etc.)")
	value := updateCmd.String("value", "", "New value for the field")

	// Check command flags
	checkTaskType := checkCmd.String("taskType", "", "Task type whose input schema to check against")
	checkFile := checkCmd.String("vars", "", "JSON file holding the job variables")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *description == "" || *taskType == "" {
			fmt.Println("Error: id, displayName, description, and taskType are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		if _, err := time.ParseDuration(*timeout); err != nil {
			fmt.Printf("Error: invalid timeout %q: %v\n", *timeout, err)
			os.Exit(1)
		}
		activity := registry.Activity{
			ID:           *idAdd,
			TaskType:     *taskType,
			DisplayName:  *displayName,
			Description:  *description,
			Category:     *category,
			Version:      *version,
			Tags:         []string{*category},
			InputSchema:  map[string]interface{}{"type": "object"},
			OutputSchema: map[string]interface{}{"type": "object"},
			ErrorCodes:   []string{},
			Timeout:      *timeout,
			Retries:      *retries,
		}
		if err := addActivity(&activity); err != nil {
			fmt.Printf("Error adding activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added activity: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateActivity(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated activity %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err == nil {
			err = reg.Validate()
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listActivities(); err != nil {
			fmt.Printf("Error listing activities: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkCmd.Parse(os.Args[2:])
		if *checkTaskType == "" || *checkFile == "" {
			fmt.Println("Error: taskType and vars are required for check.")
			checkCmd.Usage()
			os.Exit(1)
		}
		if err := checkVariables(*checkTaskType, *checkFile); err != nil {
			fmt.Printf("Variables rejected: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Variables accepted by %s.\n", *checkTaskType)

	case "help":
		fallthrough
	default:
		help()
	}
}

func addActivity(activity *registry.Activity) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.ActivityRegistry{Version: "1.0.0"}
	}

	reg.Activities = append(reg.Activities, *activity)
	if err := reg.Validate(); err != nil {
		return err
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func updateActivity(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	var activity *registry.Activity
	for i := range reg.Activities {
		if reg.Activities[i].ID == id {
			activity = &reg.Activities[i]
			break
		}
	}
	if activity == nil {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "version":
		activity.Version = value
	case "displayName":
		activity.DisplayName = value
	case "description":
		activity.Description = value
	case "category":
		activity.Category = value
	case "taskType":
		activity.TaskType = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		activity.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		activity.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func listActivities() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK TYPE\tID\tVERSION\tTIMEOUT\tRETRIES")
	for _, a := range reg.Activities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.TaskType, a.ID, a.Version, a.Timeout, a.Retries)
	}
	return w.Flush()
}

func checkVariables(taskType, path string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var vars map[string]interface{}
	if err := json.Unmarshal(data, &vars); err != nil {
		return fmt.Errorf("decode variables: %w", err)
	}
	return reg.ValidateInput(taskType, vars)
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new activity to the registry
  update   Update an existing activity's field
  validate Validate the registry file
  list     List registered activities
  check    Check a job variables file against an activity's input schema
  help     Show this help message

Examples:
  registry-updater add -id conversation.session.end -displayName "End Conversation" -description "Closes a session" -taskType end-conversation
  registry-updater update -id conversation.session.end -field timeout -value 15s
  registry-updater check -taskType analyze-message -vars testdata/analyze.json
  registry-updater validate -path pkg/registry/activities.json

The registry is embedded at build time; rebuild the worker manager after editing it.
`)
}
