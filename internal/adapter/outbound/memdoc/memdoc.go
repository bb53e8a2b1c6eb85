// Package memdoc is an in-process document-store backend. It implements
// the same collection contract as a remote document database: documents
// are stored as detached copies, unique indexes reject duplicate key
// tuples, and the filemd5 command recomputes a content digest over a
// file's chunks the way the server side would.
package memdoc

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/minhtran-dev/gridstore/internal/port"
	"github.com/spaolacci/murmur3"
)

// Backend holds named collections behind a single lock registry.
type Backend struct {
	mu           sync.Mutex
	collections  map[string]*collection
	acknowledged bool
}

// Ensure Backend implements port.Database.
var _ port.Database = (*Backend)(nil)

// New creates an empty backend. acknowledged sets the write-concern mode
// the backend reports to the store layer.
func New(acknowledged bool) *Backend {
	return &Backend{
		collections:  make(map[string]*collection),
		acknowledged: acknowledged,
	}
}

// Collection returns the named collection, creating it on first use.
func (b *Backend) Collection(name string) port.Collection {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.collections[name]
	if !ok {
		c = &collection{}
		b.collections[name] = c
	}
	return c
}

// Acknowledged reports the backend's write-concern mode.
func (b *Backend) Acknowledged() bool {
	return b.acknowledged
}

// RunCommand supports the filemd5 command: it reads the chunk documents
// for the named file from "<root>.chunks" in ordinal order and digests
// their payloads.
func (b *Backend) RunCommand(ctx context.Context, cmd port.Document) (port.Document, error) {
	fileID, ok := port.AsString(cmd[port.CmdFileMD5])
	if !ok {
		return nil, fmt.Errorf("unsupported command: %v", cmd)
	}
	root, ok := port.AsString(cmd[port.CmdRoot])
	if !ok || root == "" {
		return nil, fmt.Errorf("filemd5: missing root namespace")
	}

	chunks := b.Collection(root + ".chunks")
	docs, err := chunks.Find(ctx, port.Document{port.FieldFilesID: fileID}, port.FieldN)
	if err != nil {
		return nil, err
	}

	h := md5.New()
	for _, doc := range docs {
		data, ok := port.AsBytes(doc[port.FieldData])
		if !ok {
			return nil, fmt.Errorf("filemd5: chunk without payload for file %s", fileID)
		}
		h.Write(data)
	}

	return port.Document{port.FieldMD5: hex.EncodeToString(h.Sum(nil))}, nil
}

type uniqueIndex struct {
	fields []string
	seen   map[uint64]struct{}
}

type collection struct {
	mu      sync.RWMutex
	docs    []port.Document
	indexes []*uniqueIndex
}

var _ port.Collection = (*collection)(nil)

func (c *collection) FindOne(ctx context.Context, selector port.Document) (port.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if port.Matches(doc, selector) {
			return clone(doc), nil
		}
	}
	return nil, nil
}

func (c *collection) Find(ctx context.Context, selector port.Document, sortField string) ([]port.Document, error) {
	c.mu.RLock()
	var out []port.Document
	for _, doc := range c.docs {
		if port.Matches(doc, selector) {
			out = append(out, clone(doc))
		}
	}
	c.mu.RUnlock()

	if sortField != "" {
		port.SortAscending(out, sortField)
	}
	return out, nil
}

func (c *collection) InsertOne(ctx context.Context, doc port.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(doc)
}

func (c *collection) InsertMany(ctx context.Context, docs []port.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Batch inserts are ordered and non-atomic: a duplicate in the middle
	// leaves the earlier documents committed.
	for _, doc := range docs {
		if err := c.insertLocked(doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) insertLocked(doc port.Document) error {
	for _, idx := range c.indexes {
		key := idx.keyFor(doc)
		if _, dup := idx.seen[key]; dup {
			return fmt.Errorf("%w: {%s}", port.ErrDuplicateKey, strings.Join(idx.fields, ", "))
		}
	}
	for _, idx := range c.indexes {
		idx.seen[idx.keyFor(doc)] = struct{}{}
	}
	c.docs = append(c.docs, clone(doc))
	return nil
}

func (c *collection) DeleteOne(ctx context.Context, selector port.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.docs {
		if port.Matches(doc, selector) {
			c.unindexLocked(doc)
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *collection) DeleteMany(ctx context.Context, selector port.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.docs[:0]
	for _, doc := range c.docs {
		if port.Matches(doc, selector) {
			c.unindexLocked(doc)
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return nil
}

func (c *collection) EnsureIndex(ctx context.Context, fields []string, unique bool) error {
	if !unique {
		// Non-unique indexes are a query-planner concern; nothing to
		// enforce in memory.
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, idx := range c.indexes {
		if reflect.DeepEqual(idx.fields, fields) {
			return nil
		}
	}

	idx := &uniqueIndex{fields: append([]string(nil), fields...), seen: make(map[uint64]struct{})}
	for _, doc := range c.docs {
		key := idx.keyFor(doc)
		if _, dup := idx.seen[key]; dup {
			return fmt.Errorf("%w: existing documents violate index {%s}", port.ErrDuplicateKey, strings.Join(fields, ", "))
		}
		idx.seen[key] = struct{}{}
	}
	c.indexes = append(c.indexes, idx)
	return nil
}

func (c *collection) unindexLocked(doc port.Document) {
	for _, idx := range c.indexes {
		delete(idx.seen, idx.keyFor(doc))
	}
}

// keyFor hashes the index key tuple of a document. A missing field hashes
// as a null marker, matching how document stores index absent values.
func (idx *uniqueIndex) keyFor(doc port.Document) uint64 {
	h := murmur3.New64()
	for _, field := range idx.fields {
		h.Write([]byte(field))
		h.Write([]byte{0})
		h.Write([]byte(canonical(doc[field])))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func canonical(v any) string {
	if v == nil {
		return "\x00null"
	}
	if n, ok := port.AsInt64(v); ok {
		return fmt.Sprintf("i:%d", n)
	}
	if s, ok := port.AsString(v); ok {
		return "s:" + s
	}
	return fmt.Sprintf("v:%v", v)
}

func clone(doc port.Document) port.Document {
	out := make(port.Document, len(doc))
	for k, v := range doc {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}
