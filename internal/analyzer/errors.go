package analyzer

import (
	"errors"
	"fmt"

	"github.com/rcliao/element-memory/internal/model"
)

// ErrClassificationFailed matches every *ClassificationError.
var ErrClassificationFailed = errors.New("classification failed")

// ClassificationError reports a classifier failure for one element. Nothing
// is persisted for the element.
type ClassificationError struct {
	Descriptor  model.ElementDescriptor
	Fingerprint model.Fingerprint
	Err         error
	// Shared is set when the failed call was made by another concurrent
	// Resolve for the same element, so this caller made no classifier call.
	Shared bool
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify <%s> %s: %v", e.Descriptor.Tag, e.Fingerprint, e.Err)
}

func (e *ClassificationError) Unwrap() []error {
	return []error{ErrClassificationFailed, e.Err}
}
