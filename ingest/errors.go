package ingest

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an import failed in.
type Stage string

const (
	StageLocator    Stage = "locator"
	StageLedger     Stage = "ledger"
	StageExtraction Stage = "extraction"
	StageUpload     Stage = "upload"
	StageMetadata   Stage = "metadata"
	StageIndex      Stage = "index"
	StageRecord     Stage = "record"
)

var (
	// ErrDuplicate means the source item is already in the import ledger.
	ErrDuplicate = errors.New("source item already imported")
	// ErrNotMusic means the extracted description lacks a title or artist.
	ErrNotMusic = errors.New("not a music item")
)

// ImportError reports which step of ImportOne failed for which item.
// Partial progress before the failed step is left in place.
type ImportError struct {
	Stage    Stage
	SourceID string
	Err      error
}

func (e *ImportError) Error() string {
	if e.SourceID == "" {
		return fmt.Sprintf("import %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("import %s (%s): %v", e.SourceID, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// StageOf returns the failed stage of err, or "" when err is not an ImportError.
func StageOf(err error) Stage {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return ""
}
