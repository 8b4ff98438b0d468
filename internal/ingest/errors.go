package ingest

import "errors"

var (
	ErrMissingMetadata = errors.New("no metadata provided")
	ErrInvalidMetadata = errors.New("invalid JSON metadata")
	ErrMissingImage    = errors.New("no image file provided")
	ErrEmptyImage      = errors.New("empty image file")
)
