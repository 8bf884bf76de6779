package records

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger sets the badger logger. If nil, warnings and errors go to slog.
	Logger badger.Logger
}

// NewBadger opens a BadgerDB-backed Store.
func NewBadger(bopts BadgerOptions) (*Badger, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("records: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(bopts.Dir)
	if bopts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if bopts.Logger != nil {
		dbOpts = dbOpts.WithLogger(bopts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(slogLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("records: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Put(_ context.Context, r *Record) error {
	v, err := encode(r)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(r.ID), v)
	})
}

func (b *Badger) Get(_ context.Context, id string) (*Record, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(val)
}

func (b *Badger) List(_ context.Context) iter.Seq2[*Record, error] {
	var values [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, val)
		}
		return nil
	})
	if err != nil {
		return func(yield func(*Record, error) bool) {
			yield(nil, err)
		}
	}
	return newestFirst(values)
}

func (b *Badger) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

var _ Store = (*Badger)(nil)

// slogLogger forwards badger warnings and errors to slog and drops the rest.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...interface{}) {
	slog.Error(strings.TrimSpace(fmt.Sprintf("records/badger: "+f, v...)))
}

func (slogLogger) Warningf(f string, v ...interface{}) {
	slog.Warn(strings.TrimSpace(fmt.Sprintf("records/badger: "+f, v...)))
}

func (slogLogger) Infof(string, ...interface{})  {}
func (slogLogger) Debugf(string, ...interface{}) {}
