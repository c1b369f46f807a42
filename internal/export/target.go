package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/myquery/myquery/internal/storage"
)

// Stored is where a Target put one encoded file.
type Stored struct {
	Location string
	Size     int64
	ETag     string
}

// DirTarget writes <dir>/<name>.<ext>, creating dir on first use.
type DirTarget struct {
	Dir string
}

func (d DirTarget) Write(_ context.Context, name string, format Format, body []byte, _ time.Time) (Stored, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(d.Dir, name+"."+format.Ext())
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return Stored{}, err
	}
	return Stored{Location: path, Size: int64(len(body))}, nil
}

// ObjectTarget uploads under a date partition, see storage.BuildExportKey.
// Each upload is read back with Stat; an object whose stored size differs
// from the encoded body is deleted and reported as storage.ErrIncompleteUpload.
type ObjectTarget struct {
	Store storage.ObjectStore
}

func (o ObjectTarget) Write(ctx context.Context, name string, format Format, body []byte, at time.Time) (Stored, error) {
	key, err := storage.BuildExportKey(name, format.Ext(), at)
	if err != nil {
		return Stored{}, err
	}
	if _, err := o.Store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: format.ContentType()}); err != nil {
		return Stored{}, err
	}
	location := o.Store.Location(key)

	info, err := o.Store.Stat(ctx, key)
	if err == nil && info.Size == int64(len(body)) {
		return Stored{Location: location, Size: info.Size, ETag: info.ETag}, nil
	}
	if err == nil {
		err = fmt.Errorf("%w: %s holds %d of %d bytes", storage.ErrIncompleteUpload, location, info.Size, len(body))
	} else if errors.Is(err, storage.ErrObjectNotFound) {
		err = fmt.Errorf("%w: %s is missing after upload", storage.ErrIncompleteUpload, location)
	}
	if delErr := o.Store.Delete(ctx, key); delErr != nil {
		return Stored{}, errors.Join(err, delErr)
	}
	return Stored{}, err
}
