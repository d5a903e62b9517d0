package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/igolaizola/songclip/pkg/filestore/local"
	"github.com/igolaizola/songclip/pkg/filestore/s3"
	"github.com/igolaizola/songclip/pkg/generation"
)

type fs interface {
	Upload(ctx context.Context, path, name string) error
	Download(ctx context.Context, path, name string) error
}

// Store archives session artifacts to a remote or secondary location,
// keyed by session id.
type Store struct {
	fs fs
}

// New builds a file store from a connection string. Supported types are
// "local" with a directory path and "s3" with "key:secret@bucket.region".
func New(typ, conn string, debug bool) (*Store, error) {
	var fs fs
	switch typ {
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		key := auth[0]
		secret := auth[1]
		loc := strings.SplitN(split[1], ".", 2)
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		bucket := loc[0]
		region := loc[1]
		candidate, err := s3.New(key, secret, region, bucket, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local":
		fs = local.New(conn, debug)
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{fs: fs}, nil
}

// UploadSession pushes every artifact of a session directory: the metadata
// document, the downloaded tracks, the cover and the videos. Objects are
// keyed "{session_id}/{file}".
func (s *Store) UploadSession(ctx context.Context, session *generation.Session, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("filestore: couldn't read session dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		name := session.ID + "/" + e.Name()
		if err := s.fs.Upload(ctx, path, name); err != nil {
			return fmt.Errorf("filestore: couldn't upload %s: %w", name, err)
		}
	}
	return nil
}

// DownloadFile fetches one archived artifact of a session to a local path.
func (s *Store) DownloadFile(ctx context.Context, sessionID, file, path string) error {
	name := sessionID + "/" + file
	if err := s.fs.Download(ctx, path, name); err != nil {
		return fmt.Errorf("filestore: couldn't download %s: %w", name, err)
	}
	return nil
}
