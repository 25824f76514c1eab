/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storage_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/logging"
	"github.com/hyperledger-labs/mirsim/pkg/storage"
)

var _ = Describe("Database", func() {
	var db *storage.Database

	BeforeEach(func() {
		var err error
		db, err = storage.Open(logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	It("stores and deletes values", func() {
		Expect(db.Put("a", []byte("1"))).To(Succeed())

		value, ok, err := db.Get("a")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal([]byte("1")))

		Expect(db.Delete("a")).To(Succeed())
		_, ok, err = db.Get("a")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("scans prefixes in key order", func() {
		for _, key := range []string{"p/c", "q/a", "p/a", "p/b"} {
			Expect(db.Put(key, []byte(key))).To(Succeed())
		}

		var keys []string
		Expect(db.Scan("p/", func(key string, value []byte) bool {
			keys = append(keys, key)
			return len(keys) < 2
		})).To(Succeed())
		Expect(keys).To(Equal([]string{"p/a", "p/b"}))
	})

	It("digests content independent of insertion order", func() {
		other, err := storage.Open(logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())
		defer other.Close()

		Expect(db.Put("x", []byte("1"))).To(Succeed())
		Expect(db.Put("y", []byte("2"))).To(Succeed())
		Expect(other.Put("y", []byte("2"))).To(Succeed())
		Expect(other.Put("x", []byte("1"))).To(Succeed())

		d1, err := db.Digest()
		Expect(err).NotTo(HaveOccurred())
		d2, err := other.Digest()
		Expect(err).NotTo(HaveOccurred())
		Expect(d1).To(Equal(d2))

		Expect(other.Put("x", []byte("3"))).To(Succeed())
		d3, err := other.Digest()
		Expect(err).NotTo(HaveOccurred())
		Expect(d3).NotTo(Equal(d1))
	})

	Describe("KVStore", func() {
		type stamped struct {
			Value     int64
			Timestamp int64
		}

		It("keeps typed values per namespace", func() {
			kv := storage.NewKVStore[stamped](db, "kv")
			other := storage.NewKVStore[stamped](db, "other")

			Expect(kv.Put("a", stamped{Value: 7, Timestamp: 3})).To(Succeed())
			Expect(other.Put("b", stamped{Value: 1})).To(Succeed())

			value, ok, err := kv.Get("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal(stamped{Value: 7, Timestamp: 3}))

			fallback, err := kv.GetOr("missing", stamped{Value: -1})
			Expect(err).NotTo(HaveOccurred())
			Expect(fallback.Value).To(Equal(int64(-1)))

			keys, err := kv.Keys()
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"a"}))
		})
	})
})
