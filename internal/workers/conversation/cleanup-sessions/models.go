// internal/workers/conversation/cleanup-sessions/models.go
package cleanupsessions

// Input is empty; the sweep is started by a timer event.
type Input struct{}

type Output struct {
	ExpiredCount int `json:"expiredCount"`
	ActiveCount  int `json:"activeCount"`
}
