package models

import "time"

// Message types exchanged between contexts
const (
	MsgStartScraping     = "START_SCRAPING"
	MsgStopScraping      = "STOP_SCRAPING"
	MsgScrapingProgress  = "SCRAPING_PROGRESS"
	MsgScrapingComplete  = "SCRAPING_COMPLETE"
	MsgScrapingError     = "SCRAPING_ERROR"
	MsgProcessSingleItem = "PROCESS_SINGLE_ITEM"
	MsgStartSync         = "START_SYNC"
	MsgCheckExtension    = "CHECK_EXTENSION"
	MsgConfigure         = "CONFIGURE"
	MsgAuthSuccess       = "AUTH_SUCCESS"
	MsgAuthLogout        = "AUTH_LOGOUT"
	MsgGetStatus         = "GET_STATUS"
)

// ScrapeConfig travels with START_SCRAPING
type ScrapeConfig struct {
	RunID             string        `json:"runId"`
	URLFragment       string        `json:"urlFragment"`
	ItemSelector      string        `json:"itemSelector"`
	ContainerSelector string        `json:"containerSelector"`
	MaxScrollAttempts int           `json:"maxScrollAttempts"`
	MaxEmptyPasses    int           `json:"maxEmptyPasses"`
	SettleDelay       time.Duration `json:"settleDelay"`
	Stagger           time.Duration `json:"stagger"`
}

// StartSyncData is sent by the companion frontend
type StartSyncData struct {
	ActivityURL string `json:"activityUrl,omitempty"`
	MaxScrolls  int    `json:"maxScrollAttempts,omitempty"`
}

// StartSyncResult acknowledges a started run
type StartSyncResult struct {
	Started bool   `json:"started"`
	RunID   string `json:"runId"`
	TabID   string `json:"tabId"`
}

// ProgressData is the SCRAPING_PROGRESS payload
type ProgressData struct {
	RunID           string  `json:"runId"`
	Phase           Phase   `json:"phase"`
	TotalCollected  int     `json:"totalCollected"`
	TotalProcessed  int     `json:"totalProcessed"`
	TotalElements   int     `json:"totalElements"`
	TotalSuccessful int     `json:"totalSuccessful"`
	TotalFailed     int     `json:"totalFailed"`
	ScrollAttempt   int     `json:"scrollAttempt,omitempty"`
	MaxAttempts     int     `json:"maxAttempts,omitempty"`
	Percentage      float64 `json:"progressPercentage"`
	SuccessRate     float64 `json:"successRate"`
	DurationSeconds float64 `json:"durationSeconds"`
	Message         string  `json:"message,omitempty"`
}

// CompleteData is the SCRAPING_COMPLETE payload
type CompleteData struct {
	RunID           string  `json:"runId"`
	TotalCollected  int     `json:"totalCollected"`
	TotalProcessed  int     `json:"totalProcessed"`
	TotalSuccessful int     `json:"totalSuccessful"`
	TotalFailed     int     `json:"totalFailed"`
	SuccessRate     float64 `json:"successRate"`
	DurationSeconds float64 `json:"durationSeconds"`
	Message         string  `json:"message"`
	Cancelled       bool    `json:"cancelled,omitempty"`
}

// ErrorData is the SCRAPING_ERROR payload
type ErrorData struct {
	RunID    string `json:"runId"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	Recovery string `json:"recovery,omitempty"`
}

// ProcessItemData is the PROCESS_SINGLE_ITEM payload
type ProcessItemData struct {
	RunID string        `json:"runId"`
	Item  CollectedItem `json:"item"`
}

// ProcessItemResult answers PROCESS_SINGLE_ITEM
type ProcessItemResult struct {
	Success bool   `json:"success"`
	ItemID  string `json:"itemId"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// CheckExtensionResult answers CHECK_EXTENSION
type CheckExtensionResult struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version"`
}

// ConfigureData is the CONFIGURE payload
type ConfigureData struct {
	AuthToken   string `json:"authToken"`
	UserID      string `json:"userId"`
	FrontendURL string `json:"frontendUrl,omitempty"`
	BackendURL  string `json:"backendUrl,omitempty"`
}

// AuthSuccessData is the AUTH_SUCCESS payload
type AuthSuccessData struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
}

// Ack is the generic acknowledgement
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// StatusResult answers GET_STATUS
type StatusResult struct {
	Authenticated bool      `json:"authenticated"`
	Reason        string    `json:"reason,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	Active        bool      `json:"active"`
	Run           *RunState `json:"run,omitempty"`
	Stats         SyncStats `json:"stats"`
}
