// Package discovery finds files in the source drive that the service has not
// seen yet and hands them to the pipeline.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/nikhilbhutani/docextract/internal/models"
	"github.com/nikhilbhutani/docextract/internal/sharepoint"
	"github.com/nikhilbhutani/docextract/pkg/concurrency"
)

const defaultContentType = "application/pdf"

var resourcePattern = regexp.MustCompile(`^/?drives/([^/]+)/(?:root|items/[^/]+)$`)

// Notification is one change notification from the source store.
type Notification struct {
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Resource       string          `json:"resource"`
	ChangeType     string          `json:"changeType"`
	ClientState    string          `json:"clientState,omitempty"`
	ResourceData   json.RawMessage `json:"resourceData,omitempty"`
}

type NotificationBatch struct {
	Value []Notification `json:"value"`
}

// ParseDriveID extracts the drive id from a notification resource path.
func ParseDriveID(resource string) (string, bool) {
	m := resourcePattern.FindStringSubmatch(resource)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type Lister interface {
	ListChildren(ctx context.Context, driveID string) ([]sharepoint.DriveItem, error)
}

type KnownChecker interface {
	ExistsByExternalID(ctx context.Context, ext models.ExternalID) (bool, error)
}

type Starter interface {
	Start(ctx context.Context, file models.SourceFile) (*models.Document, error)
}

type Options struct {
	ClientState string // empty accepts every notification
	Concurrency int
	Logger      *slog.Logger
}

type Gateway struct {
	lister  Lister
	known   KnownChecker
	starter Starter
	opts    Options
	logger  *slog.Logger
}

func NewGateway(lister Lister, known KnownChecker, starter Starter, opts Options) *Gateway {
	if opts.Concurrency < 1 {
		opts.Concurrency = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{lister: lister, known: known, starter: starter, opts: opts, logger: logger}
}

// FilterNotifications returns the distinct drives named by valid notifications.
// Notifications with a foreign client state or an unknown resource are dropped.
func (g *Gateway) FilterNotifications(batch []Notification) []string {
	seen := make(map[string]bool)
	var drives []string
	for _, n := range batch {
		if g.opts.ClientState != "" && n.ClientState != g.opts.ClientState {
			g.logger.Warn("dropping notification with invalid clientState", "resource", n.Resource)
			continue
		}
		driveID, ok := ParseDriveID(n.Resource)
		if !ok {
			g.logger.Warn("could not parse drive id from resource", "resource", n.Resource)
			continue
		}
		g.logger.Info("drive updated", "drive_id", driveID, "change_type", n.ChangeType)
		if !seen[driveID] {
			seen[driveID] = true
			drives = append(drives, driveID)
		}
	}
	return drives
}

// Stats summarises one reconcile pass.
type Stats struct {
	DriveID string `json:"drive_id"`
	Listed  int    `json:"listed"`
	Skipped int    `json:"skipped"` // folders
	Known   int    `json:"known"`
	Started int    `json:"started"`
	Failed  int    `json:"failed"`
}

type outcome struct {
	ext models.ExternalID
	err error
}

// Reconcile starts the pipeline for every file in the drive that has no
// document yet. Pipeline failures are logged and counted; only listing and
// lookup errors are returned.
func (g *Gateway) Reconcile(ctx context.Context, driveID string) (*Stats, error) {
	items, err := g.lister.ListChildren(ctx, driveID)
	if err != nil {
		return nil, fmt.Errorf("reconcile drive %s: %w", driveID, err)
	}

	stats := &Stats{DriveID: driveID, Listed: len(items)}
	var tasks []concurrency.Task[outcome]

	for _, item := range items {
		if item.IsFolder() || item.File == nil {
			stats.Skipped++
			continue
		}

		file := sourceFile(driveID, item)
		known, err := g.known.ExistsByExternalID(ctx, file.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", file.ExternalID, err)
		}
		if known {
			stats.Known++
			continue
		}

		g.logger.Info("found new file", "external_id", file.ExternalID.String(), "file_name", file.FileName)
		tasks = append(tasks, func(ctx context.Context) (outcome, error) {
			_, err := g.starter.Start(ctx, file)
			return outcome{ext: file.ExternalID, err: err}, nil
		})
	}

	results, err := concurrency.Run(ctx, tasks, g.opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("reconcile drive %s: %w", driveID, err)
	}

	for _, r := range results {
		stats.Started++
		if r.err != nil {
			stats.Failed++
			g.logger.Error("document pipeline failed", "external_id", r.ext.String(), "error", r.err)
		}
	}

	g.logger.Info("drive reconciled",
		"drive_id", driveID,
		"listed", stats.Listed,
		"known", stats.Known,
		"started", stats.Started,
		"failed", stats.Failed,
	)
	return stats, nil
}

func sourceFile(driveID string, item sharepoint.DriveItem) models.SourceFile {
	if item.ParentReference.DriveID != "" {
		driveID = item.ParentReference.DriveID
	}
	contentType := defaultContentType
	if item.File != nil && item.File.MimeType != "" {
		contentType = item.File.MimeType
	}

	file := models.SourceFile{
		ExternalID:  models.ExternalID{DriveID: driveID, ItemID: item.ID},
		FileName:    item.Name,
		ContentType: &contentType,
	}
	if item.WebURL != "" {
		webURL := item.WebURL
		file.WebURL = &webURL
	}
	if item.ParentReference.SiteID != "" {
		siteID := item.ParentReference.SiteID
		file.SiteID = &siteID
	}
	if item.Size > 0 {
		size := item.Size
		file.FileSize = &size
	}
	return file
}
