// Package leveldb provides a lake.KeyStore on disk, for deduplicating inputs
// whose distinct keys do not comfortably fit in memory.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	recPrefix   = []byte("k/")
	orderPrefix = []byte("o/")
)

var _ lake.KeyStore[lake.SongRecord] = &KeyStore[lake.SongRecord]{}

// KeyStore is a lake.KeyStore backed by a leveldb database. Records are
// stored JSON encoded under their key, along with the sequence number of the
// key's first insertion; a second key space maps sequence numbers back to
// keys so that Each can visit keys in insertion order.
//
// A KeyStore is scratch space for a single run: Close deletes its directory.
type KeyStore[T any] struct {
	dirname string
	db      *leveldb.DB
	seq     uint64
}

// NewKeyStore creates a KeyStore in dirname, which must not already hold a
// database.
func NewKeyStore[T any](dirname string) (*KeyStore[T], error) {
	if err := os.MkdirAll(dirname, 0700); err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	db, err := leveldb.OpenFile(dirname, &opt.Options{ErrorIfExist: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return &KeyStore[T]{
		dirname: dirname,
		db:      db,
	}, nil
}

func recKey(key string) []byte {
	return append(append([]byte{}, recPrefix...), key...)
}

func orderKey(seq uint64) []byte {
	k := make([]byte, len(orderPrefix)+8)
	copy(k, orderPrefix)
	binary.BigEndian.PutUint64(k[len(orderPrefix):], seq)
	return k
}

// Get implements lake.KeyStore.
func (ks *KeyStore[T]) Get(key string) (rec T, ok bool, err error) {
	data, err := ks.db.Get(recKey(key), nil)
	if err == leveldb.ErrNotFound {
		return rec, false, nil
	} else if err != nil {
		return rec, false, errors.Wrap(err, "reading record")
	}
	err = json.Unmarshal(data[8:], &rec)
	if err != nil {
		return rec, false, errors.Wrapf(err, "decoding record for '%s'", key)
	}
	return rec, true, nil
}

// Put implements lake.KeyStore.
func (ks *KeyStore[T]) Put(key string, rec T) error {
	enc, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encoding record for '%s'", key)
	}
	rk := recKey(key)
	batch := new(leveldb.Batch)
	val := make([]byte, 8, 8+len(enc))
	existing, err := ks.db.Get(rk, nil)
	switch err {
	case nil:
		copy(val, existing[:8])
	case leveldb.ErrNotFound:
		binary.BigEndian.PutUint64(val, ks.seq)
		batch.Put(orderKey(ks.seq), []byte(key))
		ks.seq++
	default:
		return errors.Wrap(err, "reading record")
	}
	batch.Put(rk, append(val, enc...))
	return errors.Wrap(ks.db.Write(batch, nil), "writing record")
}

// Each implements lake.KeyStore.
func (ks *KeyStore[T]) Each(fn func(key string, rec T) error) error {
	iter := ks.db.NewIterator(util.BytesPrefix(orderPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := string(iter.Value())
		rec, ok, err := ks.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("key '%s' is ordered but has no record", key)
		}
		if err := fn(key, rec); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iterating")
}

// Len implements lake.KeyStore.
func (ks *KeyStore[T]) Len() int { return int(ks.seq) }

// Close implements lake.KeyStore. It closes the database and deletes it.
func (ks *KeyStore[T]) Close() error {
	if err := ks.db.Close(); err != nil {
		return errors.Wrap(err, "closing leveldb")
	}
	return errors.Wrap(os.RemoveAll(ks.dirname), "removing leveldb directory")
}
