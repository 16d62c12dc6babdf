package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cutline/cutline-jobs/internal/core"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

var _ core.AssetResolver = (*DirResolver)(nil)

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".m4v": true}

// DirResolver finds music tracks and ingested videos in local directories.
type DirResolver struct {
	MusicDir  string
	IngestDir string
}

// ResolveMusic maps a track name to <MusicDir>/<name>.mp3.
func (r DirResolver) ResolveMusic(name string) (string, error) {
	if !plainName(name) {
		return "", apperrors.ValidationField("music", "music must be a plain asset name")
	}
	path := filepath.Join(r.MusicDir, name+".mp3")
	if err := regularFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.ValidationField("music", "music asset not found: "+name)
		}
		return "", fmt.Errorf("stat music %s: %w", name, err)
	}
	return path, nil
}

// ResolveIngest returns the first video file named <ingestID>.<ext> in IngestDir.
func (r DirResolver) ResolveIngest(ingestID string) (string, error) {
	if !plainName(ingestID) {
		return "", apperrors.ValidationField("video_ingest_id", "video_ingest_id must be a plain asset name")
	}
	matches, err := filepath.Glob(filepath.Join(r.IngestDir, ingestID+".*"))
	if err != nil {
		return "", fmt.Errorf("glob ingest %s: %w", ingestID, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if videoExtensions[strings.ToLower(filepath.Ext(m))] && regularFile(m) == nil {
			return m, nil
		}
	}
	return "", apperrors.ValidationField("video_ingest_id", "ingested video not found: "+ingestID)
}

func plainName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

func regularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return nil
}
