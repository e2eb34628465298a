package main

import (
	"context"
	"errors"

	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/internal/store/postgres"
)

var errNoStore = errors.New("--store or --runs-file is required")

// storeFlags select where runs are read from or saved to.
type storeFlags struct {
	dsn  string
	file string
}

func (f storeFlags) set() bool { return f.dsn != "" || f.file != "" }

// open returns the selected run store and a function releasing it.
func (f storeFlags) open(ctx context.Context) (store.RunStore, func(), error) {
	switch {
	case f.dsn != "" && f.file != "":
		return nil, nil, errors.New("--store and --runs-file are mutually exclusive")
	case f.dsn != "":
		pg, err := postgres.NewStore(ctx, f.dsn)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case f.file != "":
		return store.NewFileStore(f.file), func() {}, nil
	}
	return nil, nil, errNoStore
}
