package chat

// Status is the lifecycle state of a session. Transitions only go
// StatusActive -> StatusCompleted.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// TimeLayout formats every persisted timestamp. It is zero-padded so that
// lexicographic order equals chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// Session is the metadata record kept next to each session's CSV.
type Session struct {
	ID                 string `json:"session_id"`
	UserIP             string `json:"user_ip"`
	StartTime          string `json:"start_time"`
	Status             Status `json:"status"`
	EndTime            string `json:"end_time,omitempty"`
	TotalConversations *int   `json:"total_conversations,omitempty"`
}

// Listing groups session ids by area.
type Listing struct {
	Active    []string `json:"active"`
	Completed []string `json:"completed"`
}
