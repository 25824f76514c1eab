/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storage

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// KVStore is a typed view of one namespace of a database.
type KVStore[T any] struct {
	db     *Database
	prefix string
}

func NewKVStore[T any](db *Database, namespace string) *KVStore[T] {
	return &KVStore[T]{
		db:     db,
		prefix: namespace + "/",
	}
}

func (s *KVStore[T]) Put(key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WithMessagef(err, "could not marshal value of key %q", key)
	}
	return s.db.Put(s.prefix+key, data)
}

func (s *KVStore[T]) Get(key string) (T, bool, error) {
	var value T
	data, ok, err := s.db.Get(s.prefix + key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, errors.WithMessagef(err, "could not unmarshal value of key %q", key)
	}
	return value, true, nil
}

// GetOr returns fallback for missing keys.
func (s *KVStore[T]) GetOr(key string, fallback T) (T, error) {
	value, ok, err := s.Get(key)
	if err != nil || !ok {
		return fallback, err
	}
	return value, nil
}

func (s *KVStore[T]) Delete(key string) error {
	return s.db.Delete(s.prefix + key)
}

// Keys lists the keys of the namespace in order.
func (s *KVStore[T]) Keys() ([]string, error) {
	var keys []string
	err := s.db.Scan(s.prefix, func(key string, _ []byte) bool {
		keys = append(keys, strings.TrimPrefix(key, s.prefix))
		return true
	})
	return keys, err
}
