package core

import (
	"context"
)

// DB is the handle of the application database, whatever the engine.
type DB interface {
	PingContext(ctx context.Context) error
	Close() error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
