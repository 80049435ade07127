package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/storage"
)

var (
	errBreakerOpen      = errors.New("secondary storage circuit open")
	errSecondaryAborted = errors.New("secondary storage call aborted")
)

// fileTarget identifies whose artifacts are being persisted and where they go.
type fileTarget struct {
	owner      models.FileOwner
	ownerID    uuid.UUID
	documentID string
	location   storage.Location
}

// persistPrimary uploads each artifact to the primary tier and records its
// reference. A failed artifact is logged and left out of the returned map;
// the others still proceed.
func (s *Service) persistPrimary(ctx context.Context, logger *slog.Logger, t fileTarget, artifacts []models.Artifact) map[models.FileKind]models.StoredFile {
	ctx, end := s.stage(ctx, "primary")
	stored := make(map[models.FileKind]models.StoredFile, len(artifacts))
	var failed error
	for _, a := range artifacts {
		f, err := s.persistPrimaryArtifact(ctx, t, a)
		if err != nil {
			failed = err
			s.metrics.IncrementStorageFailure("primary", string(a.Kind))
			logger.ErrorContext(ctx, "primary storage failed", "stage", "primary", "kind", a.Kind, "error", err)
			continue
		}
		stored[a.Kind] = f
	}
	end(failed)
	return stored
}

func (s *Service) persistPrimaryArtifact(ctx context.Context, t fileTarget, a models.Artifact) (models.StoredFile, error) {
	path := storage.ObjectPath(t.location, t.documentID, a.Kind)
	url, err := s.blobs.Put(ctx, path, a.Data, a.Kind.ContentType())
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("upload %s: %w", path, err)
	}
	ref := &models.FileReference{
		Owner:       t.owner,
		OwnerID:     t.ownerID,
		Kind:        a.Kind,
		PrimaryPath: path,
		PrimaryURL:  url,
	}
	if err := s.store.UpsertFileReference(ctx, ref); err != nil {
		return models.StoredFile{}, fmt.Errorf("record file reference: %w", err)
	}
	return models.StoredFile{Path: path, URL: url}, nil
}

// persistSecondary copies artifacts to the document store. Every failure,
// panics included, is logged and swallowed. A reference is reconciled only
// for kinds the primary tier stored; stored is updated in place.
func (s *Service) persistSecondary(ctx context.Context, logger *slog.Logger, t fileTarget, artifacts []models.Artifact, stored map[models.FileKind]models.StoredFile) {
	if s.docs == nil || len(artifacts) == 0 {
		return
	}
	ctx, end := s.stage(ctx, "secondary")
	var failed error
	defer func() {
		if r := recover(); r != nil {
			failed = fmt.Errorf("panic: %v", r)
			logger.ErrorContext(ctx, "secondary storage panicked", "stage", "secondary", "panic", r)
		}
		end(failed)
	}()

	folder := storage.FolderPath(t.location)
	for _, a := range artifacts {
		if err := s.persistSecondaryArtifact(ctx, t, folder, a, stored); err != nil {
			failed = err
			s.metrics.IncrementStorageFailure("secondary", string(a.Kind))
			logger.WarnContext(ctx, "secondary storage failed", "stage", "secondary", "kind", a.Kind, "error", err)
			if errors.Is(err, errBreakerOpen) {
				return
			}
		}
	}
}

func (s *Service) persistSecondaryArtifact(ctx context.Context, t fileTarget, folder []string, a models.Artifact, stored map[models.FileKind]models.StoredFile) error {
	if s.breaker != nil && !s.breaker.Allow() {
		return errBreakerOpen
	}
	settled := false
	defer func() {
		// A panicking save still reports back so the breaker is not left
		// waiting on its trial call.
		if !settled {
			s.recordSecondary(errSecondaryAborted)
		}
	}()
	f, err := s.docs.Save(ctx, folder, storage.FileName(t.documentID, a.Kind), a.Kind.ContentType(), a.Data)
	settled = true
	s.recordSecondary(err)
	if err != nil {
		return err
	}

	primary, ok := stored[a.Kind]
	if !ok {
		return nil
	}
	if err := s.store.AttachSecondary(ctx, t.owner, t.ownerID, a.Kind, f.ID, f.WebLink); err != nil {
		return fmt.Errorf("reconcile file reference: %w", err)
	}
	primary.BackupID = f.ID
	primary.BackupURL = f.WebLink
	stored[a.Kind] = primary
	return nil
}

func (s *Service) recordSecondary(err error) {
	if s.breaker == nil {
		return
	}
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.metrics.SetSecondaryBreakerOpen(true)
			s.logger.Warn("secondary storage circuit opened", "breaker", s.breaker.Name())
		}
		return
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetSecondaryBreakerOpen(false)
		s.logger.Info("secondary storage circuit closed", "breaker", s.breaker.Name())
	}
}
