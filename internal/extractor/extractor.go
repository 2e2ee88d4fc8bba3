// Package extractor turns a finished intake transcript into an IssueRecord.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/ashureev/geek-intake/internal/domain"
)

// SchemaName labels the structured output requested from the model.
const SchemaName = "issue_record"

// Reasoner performs one schema-constrained completion and decodes it into out.
type Reasoner interface {
	Extract(ctx context.Context, prompt, schemaName string, schema json.RawMessage, out any) error
}

// draft is the part of an IssueRecord the model fills in. Identity, status
// and timestamps are owned by the caller.
type draft struct {
	ModeOfService      string                    `json:"modeOfService" jsonschema:"description=One of Online, Offline, Carry In or All"`
	Location           string                    `json:"location" jsonschema:"description=Where the user wants the service as they stated it"`
	DeviceDetails      domain.DeviceDetails      `json:"device_details"`
	PurchaseInfo       domain.PurchaseInfo       `json:"purchase_info"`
	ProblemDescription domain.ProblemDescription `json:"problem_description"`
	CategoryDetails    domain.CategoryDetails    `json:"category_details"`
	Summary            string                    `json:"summary" jsonschema:"description=A short prose summary of the issue"`
}

const promptTemplate = `You are an expert data extraction agent. Analyze the conversation transcript between a support agent and a user and extract the required information into a JSON object.

Transcript:
---
%s
---

Extract the device details, purchase information, problem description, service category and service details. Then write a final summary of the user's issue in prose.
Populate every field. If a piece of information is missing, use null, never a placeholder such as "unknown" or "N/A".
Always use a hyphen (-) wherever one is needed. Never use an en dash.`

var enDash = strings.NewReplacer("–", "-")

// Extractor builds IssueRecords from transcripts.
type Extractor struct {
	reasoner Reasoner
	schema   json.RawMessage
	logger   *slog.Logger
}

// New creates an Extractor backed by r.
func New(r Reasoner, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := Schema()
	if err != nil {
		return nil, fmt.Errorf("build issue schema: %w", err)
	}
	return &Extractor{reasoner: r, schema: schema, logger: logger}, nil
}

// Extract asks the model for the record described by transcript. The ids of
// the result are always the caller's.
func (e *Extractor) Extract(ctx context.Context, transcript, userID, conversationID string) (*domain.IssueRecord, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, domain.NewValidationError("transcript", "is empty")
	}

	var d draft
	prompt := fmt.Sprintf(promptTemplate, transcript)
	if err := e.reasoner.Extract(ctx, prompt, SchemaName, e.schema, &d); err != nil {
		e.logger.Error("issue extraction failed", "conversation_id", conversationID, "error", err)
		if domain.IsExtractionError(err) {
			return nil, err
		}
		return nil, domain.ExtractionError{Reason: "reasoning service failed", Err: err}
	}

	rec := &domain.IssueRecord{
		UserID:             userID,
		ConversationID:     conversationID,
		ModeOfService:      domain.ModeOfService(d.ModeOfService),
		Location:           d.Location,
		DeviceDetails:      d.DeviceDetails,
		PurchaseInfo:       d.PurchaseInfo,
		ProblemDescription: d.ProblemDescription,
		CategoryDetails:    d.CategoryDetails,
		Summary:            d.Summary,
	}
	replaceEnDashes(rec)
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		e.logger.Warn("extracted issue is invalid", "conversation_id", conversationID, "error", err)
		return nil, domain.ExtractionError{Reason: "invalid record", Err: err}
	}

	e.logger.Info("extracted issue", "user_id", userID, "conversation_id", conversationID)
	return rec, nil
}

func replaceEnDashes(r *domain.IssueRecord) {
	for _, s := range []*string{
		&r.Location,
		&r.Summary,
		&r.DeviceDetails.Brand,
		&r.DeviceDetails.Model,
		&r.DeviceDetails.DeviceType,
		&r.DeviceDetails.OSVersion,
		&r.PurchaseInfo.PurchaseDate,
		&r.PurchaseInfo.WarrantyStatus,
		&r.PurchaseInfo.PurchaseLocation,
		&r.ProblemDescription.Symptoms,
		&r.ProblemDescription.ErrorMessages,
		&r.ProblemDescription.Frequency,
		&r.ProblemDescription.Trigger,
		&r.ProblemDescription.TroubleshootingAttempts,
		&r.CategoryDetails.Category,
		&r.CategoryDetails.Subcategory,
	} {
		*s = enDash.Replace(*s)
	}
}

// Schema returns the JSON schema of the model's output. Every string field
// also accepts null.
func Schema() (json.RawMessage, error) {
	r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	raw, err := json.Marshal(r.Reflect(&draft{}))
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	allowNull(doc)
	return json.Marshal(doc)
}

func allowNull(node map[string]any) {
	if node["type"] == "string" {
		node["type"] = []any{"string", "null"}
	}
	props, _ := node["properties"].(map[string]any)
	for _, p := range props {
		if child, ok := p.(map[string]any); ok {
			allowNull(child)
		}
	}
}
