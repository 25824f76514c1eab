/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package storage is the persistent key/value storage of simulated servers.
// It lives outside of the arenas of the servers, so its content survives
// crashes and reboots.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

// badgerLogger adapts a Logger to badger.  Badger logs from background
// goroutines, so the logger must not feed anything the simulation depends
// on.
type badgerLogger struct {
	logger logging.Logger
}

func (bl badgerLogger) Errorf(format string, args ...interface{}) {
	bl.logger.Log(logging.LevelError, fmt.Sprintf(format, args...))
}

func (bl badgerLogger) Warningf(format string, args ...interface{}) {
	bl.logger.Log(logging.LevelWarn, fmt.Sprintf(format, args...))
}

func (bl badgerLogger) Infof(format string, args ...interface{}) {
	bl.logger.Log(logging.LevelDebug, fmt.Sprintf(format, args...))
}

func (bl badgerLogger) Debugf(format string, args ...interface{}) {
	bl.logger.Log(logging.LevelDebug, fmt.Sprintf(format, args...))
}

type Database struct {
	db *badger.DB
}

// Open creates an empty in-memory database.  Badger's own logs go to
// logger, which is synchronized.
func Open(logger logging.Logger) (*Database, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithMaxTableSize(4 << 20).
		WithLogger(badgerLogger{logger: logging.Synchronize(logger)})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open backing db")
	}

	return &Database{
		db: db,
	}, nil
}

func (d *Database) Put(key string, value []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get returns the value stored for key, ok is false for missing keys.
func (d *Database) Get(key string) (value []byte, ok bool, err error) {
	err = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WithMessagef(err, "could not read key %q", key)
	}

	return value, true, nil
}

func (d *Database) Delete(key string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Scan visits the entries whose key starts with prefix in key order until
// visit returns false.
func (d *Database) Scan(prefix string, visit func(key string, value []byte) bool) error {
	return d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return errors.WithMessagef(err, "could not read key %q", item.Key())
			}
			if !visit(string(item.KeyCopy(nil)), value) {
				return nil
			}
		}
		return nil
	})
}

// Digest hashes all entries in key order.
func (d *Database) Digest() (uint64, error) {
	h := xxhash.New()
	var lenBuf [8]byte
	err := d.Scan("", func(key string, value []byte) bool {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(key)))
		h.Write(lenBuf[:])
		h.WriteString(key)
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(value)))
		h.Write(lenBuf[:])
		h.Write(value)
		return true
	})
	if err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
