// Package redisdoc is a document-store backend on top of Redis. Each
// collection lives in one Redis hash (member -> JSON document); unique
// indexes live in companion hashes claimed with HSETNX so enforcement
// holds across processes sharing the same Redis.
package redisdoc

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/minhtran-dev/gridstore/internal/port"
	"github.com/minhtran-dev/gridstore/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

const keyspace = "gridstore"

// Backend implements port.Database over a Redis client. All round-trips
// run through a shared circuit breaker so a dead Redis fails fast instead
// of piling up timeouts.
type Backend struct {
	client       *redis.Client
	breaker      *resilience.CircuitBreaker
	acknowledged bool

	mu          sync.Mutex
	collections map[string]*collection
}

// Ensure Backend implements port.Database.
var _ port.Database = (*Backend)(nil)

// New wraps an existing Redis client. acknowledged sets the write-concern
// mode reported to the store layer.
func New(client *redis.Client, acknowledged bool) *Backend {
	return &Backend{
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "redisdoc",
		}),
		acknowledged: acknowledged,
		collections:  make(map[string]*collection),
	}
}

// Collection returns the named collection handle, creating it on first use.
func (b *Backend) Collection(name string) port.Collection {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.collections[name]
	if !ok {
		c = &collection{backend: b, name: name}
		b.collections[name] = c
	}
	return c
}

// Acknowledged reports the backend's write-concern mode.
func (b *Backend) Acknowledged() bool {
	return b.acknowledged
}

// RunCommand supports the filemd5 command against "<root>.chunks".
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

func (b *Backend) execute(ctx context.Context, fn func(context.Context) error) error {
	return b.breaker.Execute(ctx, fn)
}

type collection struct {
	backend *Backend
	name    string

	mu      sync.RWMutex
	indexes [][]string
}

var _ port.Collection = (*collection)(nil)

func (c *collection) docKey() string {
	return fmt.Sprintf("%s:doc:%s", keyspace, c.name)
}

func (c *collection) seqKey() string {
	return fmt.Sprintf("%s:seq:%s", keyspace, c.name)
}

func (c *collection) idxKey(fields []string) string {
	return fmt.Sprintf("%s:idx:%s:%s", keyspace, c.name, strings.Join(fields, "+"))
}

// indexEntry renders the key tuple of a document for one unique index.
func indexEntry(doc port.Document, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		v := doc[field]
		if v == nil {
			parts = append(parts, "null")
			continue
		}
		if n, ok := port.AsInt64(v); ok {
			parts = append(parts, fmt.Sprintf("i%d", n))
			continue
		}
		if s, ok := port.AsString(v); ok {
			parts = append(parts, "s"+s)
			continue
		}
		parts = append(parts, fmt.Sprintf("v%v", v))
	}
	return strings.Join(parts, "\x1f")
}

func (c *collection) snapshotIndexes() [][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([][]string(nil), c.indexes...)
}

func (c *collection) FindOne(ctx context.Context, selector port.Document) (port.Document, error) {
	docs, err := c.Find(ctx, selector, "")
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (c *collection) Find(ctx context.Context, selector port.Document, sortField string) ([]port.Document, error) {
	var raw map[string]string
	err := c.backend.execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = c.backend.client.HGetAll(ctx, c.docKey()).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redisdoc find on %s: %w", c.name, err)
	}

	var out []port.Document
	for _, encoded := range raw {
		var doc port.Document
		if err := json.Unmarshal([]byte(encoded), &doc); err != nil {
			return nil, fmt.Errorf("redisdoc decode on %s: %w", c.name, err)
		}
		if port.Matches(doc, selector) {
			out = append(out, doc)
		}
	}

	if sortField != "" {
		port.SortAscending(out, sortField)
	}
	return out, nil
}

func (c *collection) InsertOne(ctx context.Context, doc port.Document) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redisdoc encode on %s: %w", c.name, err)
	}

	return c.backend.execute(ctx, func(ctx context.Context) error {
		member, err := c.backend.client.Incr(ctx, c.seqKey()).Result()
		if err != nil {
			return err
		}
		memberKey := fmt.Sprintf("%d", member)

		// Claim index entries first so a duplicate never reaches the
		// document hash. Roll the claims back on rejection.
		indexes := c.snapshotIndexes()
		claimed := make([]string, 0, len(indexes))
		for _, fields := range indexes {
			entry := indexEntry(doc, fields)
			ok, err := c.backend.client.HSetNX(ctx, c.idxKey(fields), entry, memberKey).Result()
			if err != nil {
				c.releaseClaims(ctx, doc, claimed)
				return err
			}
			if !ok {
				c.releaseClaims(ctx, doc, claimed)
				return fmt.Errorf("%w: {%s}", port.ErrDuplicateKey, strings.Join(fields, ", "))
			}
			claimed = append(claimed, strings.Join(fields, "+"))
		}

		return c.backend.client.HSet(ctx, c.docKey(), memberKey, string(encoded)).Err()
	})
}

func (c *collection) releaseClaims(ctx context.Context, doc port.Document, claimed []string) {
	for _, joined := range claimed {
		fields := strings.Split(joined, "+")
		c.backend.client.HDel(ctx, c.idxKey(fields), indexEntry(doc, fields))
	}
}

func (c *collection) InsertMany(ctx context.Context, docs []port.Document) error {
	// Ordered and non-atomic, matching the contract: the first failure
	// leaves earlier documents committed.
	for _, doc := range docs {
		if err := c.InsertOne(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) DeleteOne(ctx context.Context, selector port.Document) error {
	return c.delete(ctx, selector, true)
}

func (c *collection) DeleteMany(ctx context.Context, selector port.Document) error {
	return c.delete(ctx, selector, false)
}

func (c *collection) delete(ctx context.Context, selector port.Document, single bool) error {
	return c.backend.execute(ctx, func(ctx context.Context) error {
		raw, err := c.backend.client.HGetAll(ctx, c.docKey()).Result()
		if err != nil {
			return err
		}

		indexes := c.snapshotIndexes()
		for memberKey, encoded := range raw {
			var doc port.Document
			if err := json.Unmarshal([]byte(encoded), &doc); err != nil {
				return fmt.Errorf("redisdoc decode on %s: %w", c.name, err)
			}
			if !port.Matches(doc, selector) {
				continue
			}

			if err := c.backend.client.HDel(ctx, c.docKey(), memberKey).Err(); err != nil {
				return err
			}
			for _, fields := range indexes {
				if err := c.backend.client.HDel(ctx, c.idxKey(fields), indexEntry(doc, fields)).Err(); err != nil {
					return err
				}
			}
			if single {
				return nil
			}
		}
		return nil
	})
}

func (c *collection) EnsureIndex(ctx context.Context, fields []string, unique bool) error {
	if !unique {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	joined := strings.Join(fields, "+")
	for _, existing := range c.indexes {
		if strings.Join(existing, "+") == joined {
			return nil
		}
	}
	c.indexes = append(c.indexes, append([]string(nil), fields...))

	// Backfill claims for documents already present so the index applies
	// to pre-existing data as well.
	return c.backend.execute(ctx, func(ctx context.Context) error {
		raw, err := c.backend.client.HGetAll(ctx, c.docKey()).Result()
		if err != nil {
			return err
		}
		for memberKey, encoded := range raw {
			var doc port.Document
			if err := json.Unmarshal([]byte(encoded), &doc); err != nil {
				return fmt.Errorf("redisdoc decode on %s: %w", c.name, err)
			}
			if err := c.backend.client.HSetNX(ctx, c.idxKey(fields), indexEntry(doc, fields), memberKey).Err(); err != nil {
				return err
			}
		}
		return nil
	})
}
