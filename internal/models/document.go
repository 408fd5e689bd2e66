package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Step is the pipeline phase of an IN_PROGRESS document.
type Step string

const (
	StepDownloading   Step = "DOWNLOADING"
	StepOCR           Step = "OCR"
	StepAIExtraction  Step = "AI_EXTRACTION"
	StepSavingResults Step = "SAVING_RESULTS"
)

// ExternalID identifies a file in the source store. It is the dedup key for documents.
type ExternalID struct {
	DriveID string `json:"driveId"`
	ItemID  string `json:"itemId"`
}

func (e ExternalID) String() string {
	return e.DriveID + "/" + e.ItemID
}

func (e ExternalID) IsZero() bool {
	return e.DriveID == "" || e.ItemID == ""
}

// FieldValue is one extracted field together with the evidence it was read from.
type FieldValue struct {
	Value          string `json:"value"`
	SourceText     string `json:"sourceText"`
	SourceSentence string `json:"sourceSentence"`
}

// FieldData is the persisted extraction result. Values are kept as raw JSON so
// keys written by older schemas survive read-modify-write cycles untouched.
type FieldData map[string]json.RawMessage

type Document struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	DriveID           string     `json:"driveId" db:"drive_id"`
	ItemID            string     `json:"itemId" db:"item_id"`
	SiteID            *string    `json:"siteId,omitempty" db:"site_id"`
	WebURL            *string    `json:"webUrl,omitempty" db:"web_url"`
	FileName          string     `json:"fileName" db:"file_name"`
	FileSize          *int64     `json:"fileSize,omitempty" db:"file_size"`
	ContentType       *string    `json:"contentType,omitempty" db:"content_type"`
	DocumentType      *string    `json:"documentType" db:"document_type"`
	Status            Status     `json:"status" db:"status"`
	CurrentStep       *Step      `json:"currentStep" db:"current_step"`
	RawText           *string    `json:"rawText,omitempty" db:"raw_text"`
	Data              FieldData  `json:"data,omitempty" db:"data"`
	SearchableDriveID *string    `json:"searchableDriveId,omitempty" db:"searchable_drive_id"`
	SearchableItemID  *string    `json:"searchableItemId,omitempty" db:"searchable_item_id"`
	OCRJobID          *string    `json:"ocrJobId,omitempty" db:"ocr_job_id"`
	ErrorMessage      *string    `json:"errorMessage" db:"error_message"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" db:"updated_at"`
	ProcessedAt       *time.Time `json:"processedAt" db:"processed_at"`
}

func (d *Document) ExternalID() ExternalID {
	return ExternalID{DriveID: d.DriveID, ItemID: d.ItemID}
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (d *Document) Clone() *Document {
	c := *d
	if d.Data != nil {
		c.Data = make(FieldData, len(d.Data))
		for k, v := range d.Data {
			c.Data[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// ChangeEvent is broadcast after every successful document write.
type ChangeEvent struct {
	ID           uuid.UUID  `json:"id"`
	ExternalID   string     `json:"externalId"`
	FileName     string     `json:"fileName"`
	Status       Status     `json:"status"`
	CurrentStep  *Step      `json:"currentStep"`
	ErrorMessage *string    `json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
	ProcessedAt  *time.Time `json:"processedAt"`
}

func NewChangeEvent(d *Document) ChangeEvent {
	return ChangeEvent{
		ID:           d.ID,
		ExternalID:   d.ExternalID().String(),
		FileName:     d.FileName,
		Status:       d.Status,
		CurrentStep:  d.CurrentStep,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt,
		ProcessedAt:  d.ProcessedAt,
	}
}

// SourceFile describes a file discovered in the source store. It is everything
// needed to (re)start processing, so reprocessing rebuilds it from a Document.
type SourceFile struct {
	ExternalID   ExternalID `json:"externalId"`
	SiteID       *string    `json:"siteId,omitempty"`
	WebURL       *string    `json:"webUrl,omitempty"`
	FileName     string     `json:"fileName"`
	FileSize     *int64     `json:"fileSize,omitempty"`
	ContentType  *string    `json:"contentType,omitempty"`
	DocumentType *string    `json:"documentType,omitempty"`
}

func (d *Document) SourceFile() SourceFile {
	return SourceFile{
		ExternalID:   d.ExternalID(),
		SiteID:       d.SiteID,
		WebURL:       d.WebURL,
		FileName:     d.FileName,
		FileSize:     d.FileSize,
		ContentType:  d.ContentType,
		DocumentType: d.DocumentType,
	}
}
