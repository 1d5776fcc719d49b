// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrCodeNoActiveConversation ErrorCode = "NO_ACTIVE_CONVERSATION"

	ErrCodePersistenceFailed        ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeStateStoreFailed         ErrorCode = "STATE_STORE_FAILED"

	ErrCodeKnowledgeLoadFailed ErrorCode = "KNOWLEDGE_LOAD_FAILED"

	ErrCodeIntentParsingFailed ErrorCode = "INTENT_PARSING_FAILED"
	ErrCodeIntentAPITimeout    ErrorCode = "INTENT_API_TIMEOUT"

	ErrCodeAnalyticsIndexFailed ErrorCode = "ANALYTICS_INDEX_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid job input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoActiveConversationError is raised when a turn arrives for a user without a session.
func NewNoActiveConversationError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoActiveConversation,
		Message:   "No active conversation for user",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Metadata:  map[string]interface{}{"userId": userID},
		Timestamp: time.Now().UTC(),
	}
}

func NewPersistenceFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Conversation persistence failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewStateStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateStoreFailed,
		Message:   "Conversation state store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewKnowledgeLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeKnowledgeLoadFailed,
		Message:   "Knowledge tables could not be loaded",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewIntentParsingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntentParsingFailed,
		Message:   "Intent parsing API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewIntentAPITimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeIntentAPITimeout,
		Message:   "Intent parsing API timeout",
		Details:   "API call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewAnalyticsIndexFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalyticsIndexFailed,
		Message:   "Analytics indexing failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:             "INVALID_INPUT",
	ErrCodeNoActiveConversation:     "NO_ACTIVE_CONVERSATION",
	ErrCodePersistenceFailed:        "PERSISTENCE_FAILED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeStateStoreFailed:         "STATE_STORE_FAILED",
	ErrCodeKnowledgeLoadFailed:      "KNOWLEDGE_LOAD_FAILED",
	ErrCodeIntentParsingFailed:      "INTENT_PARSING_FAILED",
	ErrCodeIntentAPITimeout:         "INTENT_API_TIMEOUT",
	ErrCodeAnalyticsIndexFailed:     "ANALYTICS_INDEX_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistenceFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeStateStoreFailed,
		ErrCodeIntentParsingFailed:
		return 3

	case ErrCodeIntentAPITimeout:
		return 2

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONVERSATION"):
		return "CONVERSATION"
	case strings.Contains(codeStr, "PERSISTENCE") || strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "STATE_STORE"):
		return "DATABASE"
	case strings.Contains(codeStr, "KNOWLEDGE"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "INTENT"):
		return "AI"
	case strings.Contains(codeStr, "ANALYTICS"):
		return "SEARCH"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}
