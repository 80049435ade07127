package drive

import (
	"context"
)

// Store files documents into a folder hierarchy and shares them read-only.
type Store struct {
	client   Client
	resolver *FolderResolver
}

func NewStore(client Client, resolver *FolderResolver) *Store {
	return &Store{client: client, resolver: resolver}
}

// Save places data as name inside the folder path, creating folders as needed,
// and returns the uploaded file with a link readable by anyone.
func (s *Store) Save(ctx context.Context, folder []string, name, contentType string, data []byte) (File, error) {
	parentID, err := s.resolver.Resolve(ctx, folder)
	if err != nil {
		return File{}, err
	}
	f, err := s.client.Upload(ctx, parentID, name, contentType, data)
	if err != nil {
		return File{}, err
	}
	if err := s.client.GrantPublicRead(ctx, f.ID); err != nil {
		return File{}, err
	}
	return f, nil
}
