package proposal

import "fmt"

// DocumentNotFoundError indicates that a document identity does not resolve
// to an existing proposal file.
type DocumentNotFoundError struct {
	Path string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("proposal not found: %s", e.Path)
}
