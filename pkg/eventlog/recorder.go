/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package eventlog

import (
	"os"

	"github.com/pkg/errors"
	"github.com/tidwall/wal"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

// Recorder persists entries to a write ahead log in a directory of their
// own, one record per entry.
type Recorder struct {
	log *wal.Log

	// idx is the index of the last record written, the underlying log
	// counts from 1.
	idx uint64
}

// CreateRecorder starts an empty recording in dir, replacing any
// recording already there.
func CreateRecorder(dir string) (*Recorder, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.WithMessage(err, "could not remove previous event log")
	}

	log, err := wal.Open(dir, &wal.Options{
		NoSync: true,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open event log")
	}

	return &Recorder{
		log: log,
	}, nil
}

func (r *Recorder) Record(entry *Entry) error {
	r.idx++
	return r.log.Write(r.idx, encodeEntry(entry))
}

func (r *Recorder) Close() error {
	if err := r.log.Sync(); err != nil {
		return errors.WithMessage(err, "could not sync event log")
	}
	return r.log.Close()
}

// ReadAll visits the entries recorded in dir in order.
func ReadAll(dir string, visit func(entry *Entry) error) error {
	log, err := wal.Open(dir, nil)
	if err != nil {
		return errors.WithMessage(err, "could not open event log")
	}
	defer log.Close()

	firstIndex, err := log.FirstIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read first index")
	}
	if firstIndex == 0 {
		// empty
		return nil
	}

	lastIndex, err := log.LastIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read last index")
	}

	for i := firstIndex; i <= lastIndex; i++ {
		data, err := log.Read(i)
		if err != nil {
			return errors.WithMessagef(err, "could not read index %d", i)
		}

		entry, err := decodeEntry(data)
		if err != nil {
			return errors.WithMessagef(err, "could not decode index %d, is the log corrupt?", i)
		}

		if err := visit(entry); err != nil {
			return err
		}
	}

	return nil
}

// entry { 1: time (zigzag), 2: step, 3: actor, 4: component, 5: level, 6: message }
func encodeEntry(e *Entry) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(e.Time)))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Step)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, e.Actor)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, e.Component)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Level))
	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendString(b, e.Message)
	return b
}

func decodeEntry(data []byte) (*Entry, error) {
	e := &Entry{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			data = data[m:]
			switch num {
			case 1:
				e.Time = clock.Time(protowire.DecodeZigZag(v))
			case 2:
				e.Step = v
			case 5:
				e.Level = logging.LogLevel(v)
			}
		case protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			data = data[m:]
			switch num {
			case 3:
				e.Actor = v
			case 4:
				e.Component = v
			case 6:
				e.Message = v
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return e, nil
}
