package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/igolaizola/songclip/pkg/generation"
)

// metadataFile is the session document name inside each session directory.
const metadataFile = "metadata.json"

// Store persists sessions as one JSON document per session directory. Every
// state transition saves the full document, so a crash at any point leaves
// the last completed transition on disk.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the output directory holding all session directories.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of a session by id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// CreateDir creates the session directory, parents included.
func (s *Store) CreateDir(session *generation.Session) error {
	dir := session.Dir(s.root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: couldn't create session dir: %w", err)
	}
	return nil
}

// Save writes the full session document. The write goes to a temporary file
// first and is renamed into place, so readers never observe a partial
// document. Saving an unchanged session is a no-op byte-wise: the document
// is marshaled deterministically.
func (s *Store) Save(session *generation.Session) error {
	dir := session.Dir(s.root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: couldn't create session dir: %w", err)
	}
	b, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("store: couldn't marshal session %s: %w", session.ID, err)
	}
	path := filepath.Join(dir, metadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("store: couldn't write session %s: %w", session.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: couldn't rename session %s: %w", session.ID, err)
	}
	return nil
}

// Load reads a session document by id. Documents written before the image
// and video stages existed lack those fields, so missing stage state is
// synthesized from conventionally named files found in the session
// directory.
func (s *Store) Load(id string) (*generation.Session, error) {
	dir := s.Dir(id)
	b, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("store: session %s: %w", id, generation.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: couldn't read session %s: %w", id, err)
	}
	var session generation.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, fmt.Errorf("store: couldn't unmarshal session %s: %w", id, err)
	}
	if session.ID == "" {
		session.ID = id
	}
	s.recover(&session, dir)
	return &session, nil
}

// recover fills in stage state older documents never recorded, based on the
// files the stages leave behind.
func (s *Store) recover(session *generation.Session, dir string) {
	if session.ImageResponse == nil {
		cover := filepath.Join(dir, session.CoverFile())
		if _, err := os.Stat(cover); err == nil {
			session.ImageResponse = &generation.ImageResponse{Status: "succeeded"}
			session.ImagePath = cover
		}
	}
	if session.VideoResponse == nil {
		video := filepath.Join(dir, session.VideoFile())
		if _, err := os.Stat(video); err == nil {
			session.VideoResponse = &generation.VideoResponse{Status: "succeeded"}
			session.VideoPath = video
		}
	}
}

// List loads every session under the output root, newest first. Directories
// without a readable document are skipped with a log line, a single corrupt
// session must not hide the rest.
func (s *Store) List() ([]*generation.Session, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: couldn't read output dir: %w", err)
	}
	var sessions []*generation.Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		session, err := s.Load(e.Name())
		if err != nil {
			log.Printf("store: skipping session %s: %v\n", e.Name(), err)
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Timestamp > sessions[j].Timestamp
	})
	return sessions, nil
}
