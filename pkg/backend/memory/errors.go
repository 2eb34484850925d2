package memory

import "errors"

// ErrClosed is returned after Close
var ErrClosed = errors.New("memory journal closed")
