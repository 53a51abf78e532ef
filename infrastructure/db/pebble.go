package db

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

type PebbleStore struct {
	DB *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	if path == "" {
		return nil, errors.New("pebble path required (set PEBBLE_PATH)")
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &PebbleStore{DB: db}, nil
}

func (p *PebbleStore) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	return p.DB.Close()
}
