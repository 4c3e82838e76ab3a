package chat

// Entry is one logged exchange. Fields are kept as their persisted text so
// that rows read back from disk round-trip without reformatting.
type Entry struct {
	Timestamp          string `json:"timestamp"`
	ConversationNumber int    `json:"conversation_number"`
	ChatbotType        string `json:"chatbot_type"`
	UserMessage        string `json:"user_message"`
	BotResponse        string `json:"bot_response"`
	UserIP             string `json:"user_ip"`
	RiskScore          string `json:"risk_score"`
	Scenario           string `json:"scenario"`
	Context            string `json:"context"`
}

// EntryHeader is the column order of a per-session CSV.
var EntryHeader = []string{
	"timestamp",
	"conversation_number",
	"chatbot_type",
	"user_message",
	"bot_response",
	"user_ip",
	"risk_score",
	"scenario",
	"context",
}

// ExportHeader prefixes EntryHeader in the consolidated export.
var ExportHeader = append([]string{"session_id", "session_status"}, EntryHeader...)
