package document

import "errors"

var (
	// ErrUnsupportedContainer means the bytes match no supported container format.
	ErrUnsupportedContainer = errors.New("unsupported container format")
	// ErrNoImages means the document carries no raster content to analyse.
	ErrNoImages = errors.New("no raster content")
	// ErrImageTooLarge means an image declares more than MaxImagePixels.
	ErrImageTooLarge = errors.New("image exceeds pixel budget")
	// ErrStageDisabled marks a stage statically disabled by configuration.
	ErrStageDisabled = errors.New("stage disabled")
	// ErrCanceled is returned when the caller abandons an in-flight run.
	ErrCanceled = errors.New("analysis canceled")
	// ErrNotFound is returned by repositories for unknown assessments.
	ErrNotFound = errors.New("assessment not found")
)
