package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
)

// Exporter writes records as indented JSON documents to a FileStore, one
// file per record at "<Dir>/<id>.json".
type Exporter struct {
	Files FileStore
	Dir   string
}

// Path returns the file path of the record with the given id.
func (e *Exporter) Path(id string) string {
	return path.Join(e.Dir, id+".json")
}

// Export writes r, replacing an earlier export.
func (e *Exporter) Export(ctx context.Context, r *Record) (err error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("records: marshal %s: %w", r.ID, err)
	}
	w, err := e.Files.Write(ctx, e.Path(r.ID))
	if err != nil {
		return fmt.Errorf("records: export %s: %w", r.ID, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("records: export %s: %w", r.ID, cerr)
		}
	}()
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("records: export %s: %w", r.ID, err)
	}
	return nil
}

// Load reads back an exported record. A missing export returns ErrNotFound.
func (e *Exporter) Load(ctx context.Context, id string) (*Record, error) {
	rc, err := e.Files.Read(ctx, e.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r Record
	if err := json.NewDecoder(rc).Decode(&r); err != nil {
		return nil, fmt.Errorf("records: load %s: %w", id, err)
	}
	return &r, nil
}

// Exported reports whether a record has been exported.
func (e *Exporter) Exported(ctx context.Context, id string) (bool, error) {
	return e.Files.Exists(ctx, e.Path(id))
}

// Remove deletes the export of a record, if any.
func (e *Exporter) Remove(ctx context.Context, id string) error {
	return e.Files.Delete(ctx, e.Path(id))
}
