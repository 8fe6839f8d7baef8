package catalog

import (
	"context"
	"errors"
)

// Resolver maps between topic ids and catalog names.
type Resolver struct {
	Repo TopicRepository
}

// TopicName returns the catalog name for id, if one is registered.
func (r Resolver) TopicName(ctx context.Context, id uint32) (string, bool) {
	if r.Repo == nil {
		return "", false
	}
	t, err := r.Repo.Get(ctx, id)
	if err != nil {
		return "", false
	}
	return t.Name, true
}

// TopicID returns the id registered under name.
func (r Resolver) TopicID(ctx context.Context, name string) (uint32, error) {
	if r.Repo == nil {
		return 0, ErrNotFound
	}
	t, err := r.Repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return t.ID, nil
}
