// Package drive is the secondary storage tier: a folder-organized document
// store with shareable links, backed by Google Drive.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// File is an uploaded document and its shareable link.
type File struct {
	ID      string
	WebLink string
}

// Client is the subset of document-store operations the tier needs.
type Client interface {
	FindFolder(ctx context.Context, parentID, name string) (id string, found bool, err error)
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	Upload(ctx context.Context, parentID, name, contentType string, data []byte) (File, error)
	GrantPublicRead(ctx context.Context, fileID string) error
}

// GoogleClient talks to the Drive v3 API. Shared drives are supported.
type GoogleClient struct {
	svc *drive.Service
}

// NewGoogleClient builds a client from a service-account credentials file.
func NewGoogleClient(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*GoogleClient, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(drive.DriveScope))
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (c *GoogleClient) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))
	list, err := c.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, fmt.Errorf("find folder %q: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func (c *GoogleClient) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return f.Id, nil
}

func (c *GoogleClient) Upload(ctx context.Context, parentID, name, contentType string, data []byte) (File, error) {
	f, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: contentType,
		Parents:  []string{parentID},
	}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Fields("id, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, fmt.Errorf("upload %q: %w", name, err)
	}
	return File{ID: f.Id, WebLink: f.WebViewLink}, nil
}

func (c *GoogleClient) GrantPublicRead(ctx context.Context, fileID string) error {
	_, err := c.svc.Permissions.Create(fileID, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("share %s: %w", fileID, err)
	}
	return nil
}
