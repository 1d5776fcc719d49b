// cmd/tools/nlp-inspect/analyze_test.go
package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCommand_Compact(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"analyze", "--compact", "i have maze disease in centre region yellow spots"})
	require.NoError(t, rootCmd.Execute())

	var got struct {
		Intent       string              `json:"intent"`
		Entities     map[string][]string `json:"entities"`
		Agricultural bool                `json:"agricultural"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "disease_identification", got.Intent)
	assert.Equal(t, []string{"maize"}, got.Entities["crops"])
	assert.Equal(t, []string{"centre"}, got.Entities["regions"])
	assert.True(t, got.Agricultural)
}

func TestCheckKnowledgeCommand_RequiresDirectory(t *testing.T) {
	rootCmd.SetArgs([]string{"check-knowledge"})
	assert.Error(t, rootCmd.Execute())
}
