package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"userId", "message"},
	"properties": map[string]interface{}{
		"userId":  map[string]interface{}{"type": "string", "minLength": 1},
		"message": map[string]interface{}{"type": "string"},
		"season": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"", "planting", "growing", "harvest"},
		},
	},
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name      string
		doc       map[string]interface{}
		wantValid bool
		wantField string
		wantCode  string
	}{
		{
			name:      "valid",
			doc:       map[string]interface{}{"userId": "u1", "message": "hello", "season": "harvest"},
			wantValid: true,
		},
		{
			name:      "missing message",
			doc:       map[string]interface{}{"userId": "u1"},
			wantValid: false,
			wantField: "(root)",
			wantCode:  "REQUIRED",
		},
		{
			name:      "wrong type",
			doc:       map[string]interface{}{"userId": 42, "message": "hi"},
			wantValid: false,
			wantField: "userId",
			wantCode:  "INVALID_TYPE",
		},
		{
			name:      "unknown season",
			doc:       map[string]interface{}{"userId": "u1", "message": "hi", "season": "winter"},
			wantValid: false,
			wantField: "season",
			wantCode:  "ENUM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateDocument(messageSchema, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantValid {
				assert.NoError(t, result.Err())
				return
			}
			require.NotEmpty(t, result.Errors)
			assert.True(t, result.HasErrors(tt.wantField), result.GetErrorMessages())
			assert.Equal(t, tt.wantCode, result.GetErrorsForField(tt.wantField)[0].Code)
			assert.Error(t, result.Err())
		})
	}
}

func TestValidateDocument_EmptySchemaAcceptsAnything(t *testing.T) {
	result, err := ValidateDocument(nil, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateJSON(t *testing.T) {
	schema := []byte(`{"type":"array","items":{"type":"string"}}`)

	ok, err := ValidateJSON(schema, []byte(`["maize","cassava"]`))
	require.NoError(t, err)
	assert.True(t, ok.Valid)

	bad, err := ValidateJSON(schema, []byte(`["maize",3]`))
	require.NoError(t, err)
	assert.False(t, bad.Valid)
	assert.Len(t, bad.GetErrorsForField("1"), 1)

	_, err = ValidateJSON([]byte(`{not json`), []byte(`[]`))
	assert.Error(t, err)
}

func TestValidateActivityNaming(t *testing.T) {
	assert.NoError(t, ValidateActivityNaming("conversation.message.analyze"))
	assert.Error(t, ValidateActivityNaming("analyze-message"))
	assert.Error(t, ValidateActivityNaming("Conversation.Message.Analyze"))
}
