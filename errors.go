package yamldedup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput reports a wrong number of documents or a bad mode selection.
	ErrInvalidInput = errors.New("invalid input")
	// ErrParse reports a document that is not valid YAML.
	ErrParse = errors.New("parse error")
	// ErrInvalidDocument reports a document whose shape cannot be deduplicated:
	// non-mapping root, non-scalar or duplicate mapping keys.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrWrite reports a document that could not be persisted.
	ErrWrite = errors.New("write error")
)

// DocumentError attaches a document name and, when known, a key path to an error.
type DocumentError struct {
	Name string
	Path Path
	Err  error
}

func (e *DocumentError) Error() string {
	var b strings.Builder
	b.WriteString("yamldedup: ")
	if e.Name != "" {
		b.WriteString(e.Name)
		b.WriteString(": ")
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, "at %s: ", e.Path)
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *DocumentError) Unwrap() error { return e.Err }

// WithName returns err annotated with a document name. An existing
// DocumentError keeps its path and gains the name.
func WithName(err error, name string) error {
	if err == nil {
		return nil
	}
	var de *DocumentError
	if errors.As(err, &de) && de.Name == "" {
		return &DocumentError{Name: name, Path: de.Path, Err: de.Err}
	}
	if errors.As(err, &de) {
		return err
	}
	return &DocumentError{Name: name, Err: err}
}

func invalidDoc(path Path, format string, args ...any) error {
	return &DocumentError{
		Path: path.clone(),
		Err:  fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...)),
	}
}
