package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a topic does not exist.
var ErrNotFound = errors.New("catalog: topic not found")

// ErrConflict is returned when a topic name is already bound to another id.
var ErrConflict = errors.New("catalog: topic name already in use")

// Topic names a numeric bus topic.
type Topic struct {
	ID          uint32    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Store describes the persistence surface for the topic catalog.
type Store interface {
	Close(ctx context.Context) error
	Topics() TopicRepository
	WithTx(ctx context.Context, fn func(TopicRepository) error) error
}

// TopicRepository manages topic records.
type TopicRepository interface {
	Upsert(ctx context.Context, topic Topic) error
	Get(ctx context.Context, id uint32) (*Topic, error)
	GetByName(ctx context.Context, name string) (*Topic, error)
	List(ctx context.Context) ([]Topic, error)
	Delete(ctx context.Context, id uint32) error
}
