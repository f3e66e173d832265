// Package board implements the persistence port: saved-board snapshots on
// disk, a metadata registry, export/import, and the timelapse job manager.
//
// Layout under the base directory:
//
//	<boardId>.json        one file per saved board
//	registry.json         list of BoardMetadata
//	images/<uuid>.<ext>   uploaded images
//	timelapses/<id>.mp4   rendered timelapse videos
//
// All writes go through a temp file plus rename so a crash never leaves a
// half-written board or registry behind.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

var (
	// ErrBoardNotFound reports an unknown boardId.
	ErrBoardNotFound = errors.New("board not found")
	// ErrNotOwner reports a delete attempt by someone other than the saver.
	ErrNotOwner = errors.New("not authorized to delete this board")
)

// BoardMetadata is one registry entry.
type BoardMetadata struct {
	BoardID    string `json:"boardId"`
	Name       string `json:"name"`
	SavedBy    string `json:"savedBy"`
	SavedAt    int64  `json:"savedAt"`
	ShapeCount int    `json:"shapeCount"`
}

// BoardData is the full persisted snapshot of one board.
type BoardData struct {
	BoardID       string            `json:"boardId"`
	BoardName     string            `json:"boardName"`
	RoomID        string            `json:"roomId,omitempty"`
	Shapes        []json.RawMessage `json:"shapes"`
	Strokes       []json.RawMessage `json:"strokes"`
	EraserStrokes []json.RawMessage `json:"eraserStrokes"`
	SavedBy       string            `json:"savedBy"`
	SavedAt       int64             `json:"savedAt"`
	ShapeCount    int               `json:"shapeCount"`
}

// Service persists boards under a base directory. Safe for concurrent use;
// the mutex serializes registry read-modify-write cycles.
type Service struct {
	dataDir string
	mu      sync.Mutex
}

// NewService creates the base directory tree and returns a Service.
func NewService(dataDir string) (*Service, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "images"), filepath.Join(dataDir, "timelapses")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}
	return &Service{dataDir: dataDir}, nil
}

// DataDir returns the base directory.
func (s *Service) DataDir() string { return s.dataDir }

// ImagesDir returns the uploaded-images directory.
func (s *Service) ImagesDir() string { return filepath.Join(s.dataDir, "images") }

// TimelapsesDir returns the rendered-video directory.
func (s *Service) TimelapsesDir() string { return filepath.Join(s.dataDir, "timelapses") }

// newBoardID builds a unique board id from the save time and a random suffix.
func newBoardID() string {
	return fmt.Sprintf("board-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Save writes a board snapshot and registers its metadata.
func (s *Service) Save(name, roomID, savedBy string, shapes, strokes, eraserStrokes []json.RawMessage) (string, error) {
	if shapes == nil {
		shapes = []json.RawMessage{}
	}
	if strokes == nil {
		strokes = []json.RawMessage{}
	}
	if eraserStrokes == nil {
		eraserStrokes = []json.RawMessage{}
	}

	data := BoardData{
		BoardID:       newBoardID(),
		BoardName:     name,
		RoomID:        roomID,
		Shapes:        shapes,
		Strokes:       strokes,
		EraserStrokes: eraserStrokes,
		SavedBy:       savedBy,
		SavedAt:       time.Now().UnixMilli(),
		ShapeCount:    len(shapes),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeJSON(s.boardPath(data.BoardID), data); err != nil {
		metrics.BoardOperations.WithLabelValues("save", "error").Inc()
		return "", err
	}

	registry, err := s.readRegistry()
	if err != nil {
		return "", err
	}
	registry = append(registry, BoardMetadata{
		BoardID:    data.BoardID,
		Name:       data.BoardName,
		SavedBy:    data.SavedBy,
		SavedAt:    data.SavedAt,
		ShapeCount: data.ShapeCount,
	})
	if err := s.writeJSON(s.registryPath(), registry); err != nil {
		return "", err
	}

	metrics.BoardOperations.WithLabelValues("save", "success").Inc()
	return data.BoardID, nil
}

// List returns all registered board metadata, newest first.
func (s *Service) List() ([]BoardMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.readRegistry()
	if err != nil {
		metrics.BoardOperations.WithLabelValues("list", "error").Inc()
		return nil, err
	}
	for i, j := 0, len(registry)-1; i < j; i, j = i+1, j-1 {
		registry[i], registry[j] = registry[j], registry[i]
	}
	metrics.BoardOperations.WithLabelValues("list", "success").Inc()
	return registry, nil
}

// Load reads one board snapshot.
func (s *Service) Load(boardID string) (*BoardData, error) {
	if !validBoardID(boardID) {
		return nil, ErrBoardNotFound
	}

	raw, err := os.ReadFile(s.boardPath(boardID))
	if err != nil {
		if os.IsNotExist(err) {
			metrics.BoardOperations.WithLabelValues("load", "not_found").Inc()
			return nil, ErrBoardNotFound
		}
		metrics.BoardOperations.WithLabelValues("load", "error").Inc()
		return nil, err
	}

	var data BoardData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("corrupt board file %s: %w", boardID, err)
	}
	metrics.BoardOperations.WithLabelValues("load", "success").Inc()
	return &data, nil
}

// Delete removes a board. Only the user who saved it may delete it.
func (s *Service) Delete(boardID, requestor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.readRegistry()
	if err != nil {
		return err
	}

	idx := -1
	for i, meta := range registry {
		if meta.BoardID == boardID {
			idx = i
			break
		}
	}
	if idx == -1 {
		metrics.BoardOperations.WithLabelValues("delete", "not_found").Inc()
		return ErrBoardNotFound
	}
	if registry[idx].SavedBy != requestor {
		metrics.BoardOperations.WithLabelValues("delete", "not_owner").Inc()
		return ErrNotOwner
	}

	registry = append(registry[:idx], registry[idx+1:]...)
	if err := s.writeJSON(s.registryPath(), registry); err != nil {
		return err
	}
	if err := os.Remove(s.boardPath(boardID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	metrics.BoardOperations.WithLabelValues("delete", "success").Inc()
	return nil
}

// Export returns the raw JSON document of a board.
func (s *Service) Export(boardID string) (json.RawMessage, error) {
	if !validBoardID(boardID) {
		return nil, ErrBoardNotFound
	}
	raw, err := os.ReadFile(s.boardPath(boardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBoardNotFound
		}
		return nil, err
	}
	metrics.BoardOperations.WithLabelValues("export", "success").Inc()
	return raw, nil
}

// Import saves a previously exported document under a new id.
func (s *Service) Import(name string, data json.RawMessage, savedBy string) (string, error) {
	var imported BoardData
	if err := json.Unmarshal(data, &imported); err != nil {
		metrics.BoardOperations.WithLabelValues("import", "error").Inc()
		return "", fmt.Errorf("invalid board document: %w", err)
	}
	return s.Save(name, "", savedBy, imported.Shapes, imported.Strokes, imported.EraserStrokes)
}

// --- internal ---

func (s *Service) boardPath(boardID string) string {
	return filepath.Join(s.dataDir, boardID+".json")
}

func (s *Service) registryPath() string {
	return filepath.Join(s.dataDir, "registry.json")
}

// validBoardID guards file path construction against traversal.
func validBoardID(id string) bool {
	return id != "" && strings.HasPrefix(id, "board-") && !strings.ContainsAny(id, "/\\") && !strings.Contains(id, "..")
}

func (s *Service) readRegistry() ([]BoardMetadata, error) {
	raw, err := os.ReadFile(s.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []BoardMetadata{}, nil
		}
		return nil, err
	}
	var registry []BoardMetadata
	if err := json.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("corrupt registry: %w", err)
	}
	return registry, nil
}

// writeJSON writes v atomically via temp file and rename.
func (s *Service) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dataDir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
