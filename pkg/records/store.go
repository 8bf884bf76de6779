package records

import (
	"context"
	"errors"
	"iter"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("records: not found")

// Store persists records by id.
type Store interface {
	// Put stores a record, replacing any record with the same id.
	Put(ctx context.Context, r *Record) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List iterates over all records, newest first.
	List(ctx context.Context) iter.Seq2[*Record, error]

	// Delete removes a record. No error if it does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// keyPrefix namespaces record entries inside the underlying key space.
const keyPrefix = "rec:"

func recordKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func encode(r *Record) ([]byte, error) {
	if r.ID == "" {
		return nil, errors.New("records: empty id")
	}
	s, err := toStored(r)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(s)
}

func decode(data []byte) (*Record, error) {
	var s stored
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.record()
}

// newestFirst decodes raw values and yields them ordered by CreatedAt
// descending, ties broken by id.
func newestFirst(values [][]byte) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		recs := make([]*Record, 0, len(values))
		for _, v := range values {
			r, err := decode(v)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			recs = append(recs, r)
		}
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
				return recs[i].CreatedAt.After(recs[j].CreatedAt)
			}
			return recs[i].ID < recs[j].ID
		})
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}
