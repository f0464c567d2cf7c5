package session

import "sync"

// Artifact is the handle to the compiled deployment the engine is running.
// The controller owns it exclusively until Release moves it to the caller;
// Close is idempotent.
type Artifact struct {
	ID   string
	Path string

	once    sync.Once
	onClose func() error
}

// NewArtifact wraps a compiled-artifact descriptor. onClose releases the
// underlying resource (a deployment refcount, a directory lease) and may be
// nil.
func NewArtifact(id, path string, onClose func() error) *Artifact {
	return &Artifact{ID: id, Path: path, onClose: onClose}
}

func (a *Artifact) Close() error {
	var err error
	a.once.Do(func() {
		if a.onClose != nil {
			err = a.onClose()
		}
	})
	return err
}
