package sharepoint

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

	"github.com/nikhilbhutani/docextract/internal/config"
)

// ProcessingStatus is the vocabulary of the status column on the source list item.
type ProcessingStatus string

const (
	StatusInProgress ProcessingStatus = "In progress"
	StatusProcessed  ProcessingStatus = "Processed"
	StatusFailed     ProcessingStatus = "Failed"
)

type FileFacet struct {
	MimeType string `json:"mimeType"`
}

type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

type ItemReference struct {
	DriveID string `json:"driveId"`
	SiteID  string `json:"siteId"`
}

type DriveItem struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Size            int64         `json:"size"`
	WebURL          string        `json:"webUrl"`
	File            *FileFacet    `json:"file,omitempty"`
	Folder          *FolderFacet  `json:"folder,omitempty"`
	ParentReference ItemReference `json:"parentReference"`
}

func (i DriveItem) IsFolder() bool { return i.Folder != nil }

// File is a downloaded drive item. The caller closes Body.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

type Client struct {
	baseURL     string
	statusField string
	tokens      *TokenCache
	httpClient  *http.Client
}

func NewClient(cfg config.SharePointConfig) *Client {
	creds := credentialsConfig(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.TokenURL)
	return newClient(cfg.GraphBaseURL, cfg.StatusField, NewTokenCache(creds))
}

func newClient(baseURL, statusField string, tokens *TokenCache) *Client {
	if statusField == "" {
		statusField = "Estado"
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		statusField: statusField,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type childrenPage struct {
	Value    []DriveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ListChildren returns every item in the root of the drive, following paging links.
func (c *Client) ListChildren(ctx context.Context, driveID string) ([]DriveItem, error) {
	next := c.baseURL + "/drives/" + url.PathEscape(driveID) + "/root/children"

	var items []DriveItem
	for next != "" {
		resp, err := c.send(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("list drive %s: %w", driveID, err)
		}

		var page childrenPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode drive %s children: %w", driveID, err)
		}

		items = append(items, page.Value...)
		next = page.NextLink
	}

	slog.Info("listed drive items", "drive_id", driveID, "count", len(items))
	return items, nil
}

// UpdateProcessingStatus writes status into the item's status column.
func (c *Client) UpdateProcessingStatus(ctx context.Context, driveID, itemID string, status ProcessingStatus) error {
	body, err := json.Marshal(map[string]string{c.statusField: string(status)})
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPatch, c.itemURL(driveID, itemID)+"/listItem/fields", body)
	if err != nil {
		return fmt.Errorf("update %s for %s/%s: %w", c.statusField, driveID, itemID, err)
	}
	resp.Body.Close()

	slog.Info("source status updated", "drive_id", driveID, "item_id", itemID, "status", status)
	return nil
}

func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*DriveItem, error) {
	resp, err := c.send(ctx, http.MethodGet, c.itemURL(driveID, itemID), nil)
	if err != nil {
		return nil, fmt.Errorf("get item %s/%s: %w", driveID, itemID, err)
	}
	defer resp.Body.Close()

	var item DriveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode item %s/%s: %w", driveID, itemID, err)
	}
	return &item, nil
}

// Download streams the content of a drive item.
func (c *Client) Download(ctx context.Context, driveID, itemID string) (*File, error) {
	item, err := c.GetItem(ctx, driveID, itemID)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, http.MethodGet, c.itemURL(driveID, itemID)+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", driveID, itemID, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" && item.File != nil {
		contentType = item.File.MimeType
	}
	return &File{
		Name:        item.Name,
		ContentType: contentType,
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func (c *Client) itemURL(driveID, itemID string) string {
	return c.baseURL + "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID)
}

// send performs an authenticated request. Non-2xx responses are returned as errors.
func (c *Client) send(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graph returned %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return resp, nil
}
