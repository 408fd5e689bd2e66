package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
)

type FileRequest struct {
	ExternalFileID string `json:"externalFileId,omitempty"`
	SourceDriveID  string `json:"sourceDriveId"`
	SourceItemID   string `json:"sourceItemId"`
}

type CreateJobRequest struct {
	SourceApp             string        `json:"sourceApp,omitempty"`
	GenerateSearchablePDF bool          `json:"generateSearchablePdf"`
	Files                 []FileRequest `json:"files"`
}

type Job struct {
	ID             string    `json:"id"`
	Status         JobStatus `json:"status"`
	TotalFiles     int       `json:"totalFiles"`
	ProcessedFiles int       `json:"processedFiles"`
}

// Artifact locates the searchable rendition the OCR service wrote back to the source store.
type Artifact struct {
	DriveID  string `json:"driveId"`
	ItemID   string `json:"itemId"`
	FileName string `json:"fileName,omitempty"`
}

type FileResult struct {
	ExternalFileID     string    `json:"externalFileId,omitempty"`
	SourceDriveID      string    `json:"sourceDriveId"`
	SourceItemID       string    `json:"sourceItemId"`
	Status             JobStatus `json:"status"`
	Text               string    `json:"text,omitempty"`
	SearchableArtifact *Artifact `json:"searchableArtifact,omitempty"`
}

type JobResults struct {
	Job
	Files []FileResult `json:"files"`
}

// File returns the result entry for the given source file, if the job has registered it.
func (r *JobResults) File(driveID, itemID string) (*FileResult, bool) {
	for i := range r.Files {
		if r.Files[i].SourceDriveID == driveID && r.Files[i].SourceItemID == itemID {
			return &r.Files[i], true
		}
	}
	return nil, false
}

// Client talks to the OCR jobs service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal job request: %w", err)
	}

	for _, f := range req.Files {
		slog.Info("creating OCR job", "drive_id", f.SourceDriveID, "item_id", f.SourceItemID)
	}

	var job Job
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body), &job); err != nil {
		return nil, fmt.Errorf("create OCR job: %w", err)
	}
	return &job, nil
}

func (c *Client) GetJobResults(ctx context.Context, jobID string) (*JobResults, error) {
	var results JobResults
	endpoint := c.baseURL + "/jobs/" + url.PathEscape(jobID) + "/results"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, fmt.Errorf("get OCR job %s results: %w", jobID, err)
	}
	return &results, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
