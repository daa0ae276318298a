package aggregate

import (
	"errors"
	"fmt"

	"home_energy/internal/model"
)

// ErrDuplicateSource is matched by errors.Is for any *DuplicateSourceError.
var ErrDuplicateSource = errors.New("source already loaded")

// DuplicateSourceError reports a second load of the same source label.
type DuplicateSourceError struct {
	Source model.Source
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("source %q was already loaded", e.Source)
}

func (e *DuplicateSourceError) Is(target error) bool {
	return target == ErrDuplicateSource
}

// Registry interns source labels. It only grows.
type Registry struct {
	ids    map[model.Source]model.SourceID
	labels []model.Source
}

func NewRegistry() *Registry {
	return &Registry{
		ids: make(map[model.Source]model.SourceID),
	}
}

// Register records src and returns its id. Registering the same label twice
// fails with a *DuplicateSourceError.
func (r *Registry) Register(src model.Source) (model.SourceID, error) {
	if _, ok := r.ids[src]; ok {
		return 0, &DuplicateSourceError{Source: src}
	}
	id := model.SourceID(len(r.labels))
	r.ids[src] = id
	r.labels = append(r.labels, src)
	return id, nil
}

// Label resolves an id handed out by Register.
func (r *Registry) Label(id model.SourceID) model.Source {
	if int(id) >= len(r.labels) {
		return model.Source(fmt.Sprintf("source#%d", id))
	}
	return r.labels[id]
}

func (r *Registry) Len() int {
	return len(r.labels)
}
