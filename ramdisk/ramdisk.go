// Package ramdisk parses the boot ramdisk image (the path/data record
// stream described on Parse; no type, id or parent-id fields are read)
// and indexes it for lookup, grounded on original_source's ramdisk.cpp
// (the flat name/data entry stream written by the build's ramdisk
// packer) and fs_delegate_ramdiskdelegate.cpp (path lookups against that
// stream). Rather than keeping every module's bytes decoded in memory,
// parsed entries are indexed into a bbolt database on first open so
// later ELF loads (and driver/application spawns) pay only a single
// bucket lookup per path, not a linear rescan of the image.
package ramdisk

import (
	"encoding/binary"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("ramdisk-entries")

var (
	ErrTruncated = errors.New("ramdisk: truncated entry in image")
	ErrNotFound  = errors.New("ramdisk: module not found")
)

// Entry is one decoded ramdisk module: its ramdisk-relative path and raw
// bytes.
type Entry struct {
	Path string
	Data []byte
}

// Parse decodes raw into its entries. The wire format is a flat stream of
// [uint32 path length][path bytes][uint32 data length][data bytes]
// records, terminated by a zero-length path, matching the original
// packer's simple concatenation (no compression, no per-entry
// alignment — ELF placement is handled downstream by addrpool instead).
func Parse(raw []byte) ([]Entry, error) {
	var entries []Entry
	off := 0
	for {
		if off+4 > len(raw) {
			return nil, ErrTruncated
		}
		pathLen := binary.LittleEndian.Uint32(raw[off:])
		off += 4
		if pathLen == 0 {
			break
		}
		if off+int(pathLen) > len(raw) {
			return nil, ErrTruncated
		}
		path := string(raw[off : off+int(pathLen)])
		off += int(pathLen)

		if off+4 > len(raw) {
			return nil, ErrTruncated
		}
		dataLen := binary.LittleEndian.Uint32(raw[off:])
		off += 4
		if off+int(dataLen) > len(raw) {
			return nil, ErrTruncated
		}
		data := raw[off : off+int(dataLen)]
		off += int(dataLen)

		entries = append(entries, Entry{Path: path, Data: data})
	}
	return entries, nil
}

// Index is a bbolt-backed lookup table from ramdisk path to module
// bytes, satisfying elfloader.Reader.
type Index struct {
	db    *bolt.DB
	paths []string
}

// Build parses raw and writes every entry into a fresh bbolt database at
// dbPath, overwriting whatever was there before (the ramdisk image is
// rebuilt on every boot, so the index is always disposable).
func Build(dbPath string, raw []byte) (*Index, error) {
	entries, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ramdisk: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ramdisk: opening index: %w", err)
	}

	paths := make([]string, 0, len(entries))
	err = db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketName)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.Put([]byte(e.Path), e.Data); err != nil {
				return err
			}
			paths = append(paths, e.Path)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ramdisk: indexing: %w", err)
	}

	return &Index{db: db, paths: paths}, nil
}

// ReadObject satisfies elfloader.Reader, resolving a ramdisk path to its
// module bytes.
func (idx *Index) ReadObject(path string) ([]byte, error) {
	var out []byte
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(path))
		if v == nil {
			return ErrNotFound
		}
		out = append(out, v...) // copy: the value's backing memory is only valid inside this transaction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Paths lists every module path currently indexed, used as LoadGraph's
// dependency-resolution candidate list.
func (idx *Index) Paths() []string { return idx.paths }

func (idx *Index) Close() error { return idx.db.Close() }
