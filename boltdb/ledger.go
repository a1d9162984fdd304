// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package boltdb keeps a ledger of lake runs in a bolt database.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

var (
	runsBucket = []byte("runs")
	idsBucket  = []byte("ids")
)

// Ledger records a lake.RunSummary for every run, in the order they were
// recorded.
type Ledger struct {
	Db *bolt.DB
}

// OpenLedger opens (creating if necessary) the ledger in filename.
func OpenLedger(filename string) (*Ledger, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(runsBucket); err != nil {
			return errors.Wrap(err, "creating runs bucket")
		}
		_, err := tx.CreateBucketIfNotExists(idsBucket)
		return errors.Wrap(err, "creating ids bucket")
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &Ledger{Db: db}, nil
}

// Record stores sum. Recording a run ID a second time replaces the earlier
// summary but keeps its position.
func (l *Ledger) Record(sum lake.RunSummary) error {
	val, err := json.Marshal(sum)
	if err != nil {
		return errors.Wrap(err, "marshaling run summary")
	}
	return l.Db.Update(func(tx *bolt.Tx) error {
		rb, ib := tx.Bucket(runsBucket), tx.Bucket(idsBucket)
		key := ib.Get([]byte(sum.RunID))
		if key == nil {
			seq, err := rb.NextSequence()
			if err != nil {
				return errors.Wrap(err, "getting sequence")
			}
			key = make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := ib.Put([]byte(sum.RunID), key); err != nil {
				return errors.Wrap(err, "inserting into ids bucket")
			}
		}
		return errors.Wrap(rb.Put(key, val), "inserting into runs bucket")
	})
}

// Run gets the summary of the run with the given ID.
func (l *Ledger) Run(runID string) (sum lake.RunSummary, ok bool, err error) {
	err = l.Db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(idsBucket).Get([]byte(runID))
		if key == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(tx.Bucket(runsBucket).Get(key), &sum)
	})
	return sum, ok, errors.Wrapf(err, "getting run %s", runID)
}

// Runs gets the summaries of the last n runs, oldest first. n <= 0 gets all
// of them.
func (l *Ledger) Runs(n int) ([]lake.RunSummary, error) {
	var sums []lake.RunSummary
	err := l.Db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(sums) < n); k, v = c.Prev() {
			var sum lake.RunSummary
			if err := json.Unmarshal(v, &sum); err != nil {
				return errors.Wrapf(err, "decoding run %d", binary.BigEndian.Uint64(k))
			}
			sums = append(sums, sum)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	for i, j := 0, len(sums)-1; i < j; i, j = i+1, j-1 {
		sums[i], sums[j] = sums[j], sums[i]
	}
	return sums, nil
}

// Close syncs and closes the underlying boltdb.
func (l *Ledger) Close() error {
	err := l.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return l.Db.Close()
}
