package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docextract/internal/models"
)

const (
	TypeDriveReconcile    = "drive:reconcile"
	TypeDocumentReprocess = "document:reprocess"
	TypeDocumentProcess   = "document:process"
)

type DriveReconcilePayload struct {
	DriveID string `json:"drive_id"`
}

type DocumentReprocessPayload struct {
	DriveID string `json:"drive_id"`
	ItemID  string `json:"item_id"`
}

func (p DocumentReprocessPayload) ExternalID() models.ExternalID {
	return models.ExternalID{DriveID: p.DriveID, ItemID: p.ItemID}
}

// NewDriveReconcileTask builds the reconcile task for both ad hoc enqueues and the scheduler.
func NewDriveReconcileTask(driveID string) (*asynq.Task, error) {
	return newTask(TypeDriveReconcile, DriveReconcilePayload{DriveID: driveID})
}

func NewDocumentReprocessTask(ext models.ExternalID) (*asynq.Task, error) {
	return newTask(TypeDocumentReprocess, DocumentReprocessPayload{DriveID: ext.DriveID, ItemID: ext.ItemID})
}

// NewDocumentProcessTask carries the source file a rescan found. Its payload is
// the models.SourceFile JSON.
func NewDocumentProcessTask(file models.SourceFile) (*asynq.Task, error) {
	if file.ExternalID.IsZero() {
		return nil, fmt.Errorf("process task without external id")
	}
	return newTask(TypeDocumentProcess, file)
}

func newTask(taskType string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}
