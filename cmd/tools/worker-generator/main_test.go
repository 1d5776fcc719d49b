// cmd/tools/worker-generator/main_test.go
package main

import (
	"testing"

	"agribot-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStructFields(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"userId":     map[string]interface{}{"type": "string"},
			"turnCount":  map[string]interface{}{"type": "integer"},
			"confidence": map[string]interface{}{"type": "number"},
		},
	}

	assert.Equal(t,
		"\tConfidence float64 `json:\"confidence\"`\n"+
			"\tTurnCount int `json:\"turnCount\"`\n"+
			"\tUserID string `json:\"userId\"`",
		generateStructFields(schema))
	assert.Empty(t, generateStructFields(map[string]interface{}{"type": "object"}))
}

func TestTimeoutLiteral(t *testing.T) {
	tests := map[string]string{
		"10s":   "10 * time.Second",
		"500ms": "500 * time.Millisecond",
		"2m":    "2 * time.Minute",
		"":      "10 * time.Second",
	}
	for in, want := range tests {
		assert.Equal(t, want, timeoutLiteral(in), in)
	}
}

func TestRender_RegistryActivity(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	activity, ok := reg.Find("end-conversation")
	require.True(t, ok)

	files, err := render(dataFor(activity))
	require.NoError(t, err)
	require.Len(t, files, 4)

	assert.Contains(t, string(files["handler.go"]), `const TaskType = "end-conversation"`)
	assert.Contains(t, string(files["handler.go"]), "package endconversation")
	assert.Contains(t, string(files["models.go"]), "UserID string `json:\"userId\"`")
	assert.Contains(t, string(files["config.go"]), "Timeout: 10 * time.Second")
}
