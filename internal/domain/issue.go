package domain

import (
	"strings"
	"time"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueClosed     IssueStatus = "closed"
)

// ModeOfService is how the user wants the issue serviced.
type ModeOfService string

const (
	ModeOnline  ModeOfService = "Online"
	ModeOffline ModeOfService = "Offline"
	ModeCarryIn ModeOfService = "Carry In"
	ModeAll     ModeOfService = "All"
)

// ParseModeOfService maps loose spellings onto a ModeOfService.
func ParseModeOfService(s string) (ModeOfService, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "online":
		return ModeOnline, true
	case "offline":
		return ModeOffline, true
	case "carryin":
		return ModeCarryIn, true
	case "all":
		return ModeAll, true
	}
	return "", false
}

// DeviceDetails describes the affected device.
type DeviceDetails struct {
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	DeviceType string `json:"device_type"`
	OSVersion  string `json:"os_version"`
}

// PurchaseInfo describes where and when the device was bought.
type PurchaseInfo struct {
	PurchaseDate     string `json:"purchase_date"`
	WarrantyStatus   string `json:"warranty_status"`
	PurchaseLocation string `json:"purchase_location"`
}

// ProblemDescription captures the reported symptoms.
type ProblemDescription struct {
	Symptoms                string `json:"symptoms"`
	ErrorMessages           string `json:"error_messages"`
	Frequency               string `json:"frequency"`
	Trigger                 string `json:"trigger"`
	TroubleshootingAttempts string `json:"troubleshooting_attempts"`
}

// CategoryDetails names the service category chosen in the conversation.
type CategoryDetails struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// IssueRecord is the structured form of a finished conversation.
type IssueRecord struct {
	ID                 string             `json:"_id,omitempty"`
	UserID             string             `json:"user_id"`
	ConversationID     string             `json:"conversation_id"`
	Status             IssueStatus        `json:"status"`
	ModeOfService      ModeOfService      `json:"modeOfService"`
	Location           string             `json:"location"`
	DeviceDetails      DeviceDetails      `json:"device_details"`
	PurchaseInfo       PurchaseInfo       `json:"purchase_info"`
	ProblemDescription ProblemDescription `json:"problem_description"`
	CategoryDetails    CategoryDetails    `json:"category_details"`
	Summary            string             `json:"summary"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Normalize applies defaults and canonical spellings. Unknown modes are left
// untouched so Validate can report them.
func (r *IssueRecord) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ConversationID = strings.TrimSpace(r.ConversationID)
	r.Location = strings.TrimSpace(r.Location)
	if r.Status == "" {
		r.Status = IssueOpen
	}
	if r.ModeOfService == "" {
		r.ModeOfService = ModeAll
	} else if m, ok := ParseModeOfService(string(r.ModeOfService)); ok {
		r.ModeOfService = m
	}
}

// Validate checks the record and reports every violated field at once.
func (r *IssueRecord) Validate() error {
	var v validator
	switch {
	case r.UserID == "":
		v.add("user_id", "is required")
	case !ValidID(r.UserID):
		v.add("user_id", "has an invalid format")
	}
	switch {
	case r.ConversationID == "":
		v.add("conversation_id", "is required")
	case !ValidID(r.ConversationID):
		v.add("conversation_id", "has an invalid format")
	}
	switch r.Status {
	case IssueOpen, IssueInProgress, IssueClosed:
	default:
		v.add("status", "must be one of open, in_progress, closed")
	}
	switch r.ModeOfService {
	case ModeOnline, ModeOffline, ModeCarryIn, ModeAll:
	default:
		v.add("modeOfService", "must be one of Online, Offline, Carry In, All")
	}
	if strings.TrimSpace(r.Summary) == "" {
		v.add("summary", "is required")
	}
	return v.err()
}
