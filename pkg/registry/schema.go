// pkg/registry/schema.go
package registry

type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one job type the worker manager serves. InputSchema is
// checked against the job variables before a handler runs; OutputSchema and
// ErrorCodes document what the process model can rely on.
type Activity struct {
	ID          string   `json:"id"` // domain.subdomain.action
	TaskType    string   `json:"taskType"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`

	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	ErrorCodes   []string               `json:"errorCodes"`

	Timeout string `json:"timeout"` // Go duration, e.g. "10s"
	Retries int    `json:"retries"`
}
