package common

import (
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru"
	"github.com/slotchain/slotchain/log"
)

// adapted from the teacher's common/cache.go: LRU / ARC / sharded-LRU
// cache constructors selected by a CacheConfiger, unchanged in shape.

type CacheType int

const (
	LRUCacheType CacheType = iota
	LRUShardCacheType
	ARCCacheType
)

var DefaultCacheType CacheType = LRUCacheType
var CacheScale int = 100 // cache size = preset size * CacheScale / 100
var logger = log.NewModuleLogger(log.ModuleCommon)

// CacheKey lets sharded caches pick a shard without a type switch.
type CacheKey interface {
	getShardIndex(shardMask int) int
}

type Cache interface {
	Add(key CacheKey, value interface{}) (evicted bool)
	Get(key CacheKey) (value interface{}, ok bool)
	Contains(key CacheKey) bool
	Purge()
}

type lruCache struct{ lru *lru.Cache }

func (c *lruCache) Add(key CacheKey, value interface{}) (evicted bool) { return c.lru.Add(key, value) }
func (c *lruCache) Get(key CacheKey) (interface{}, bool)               { return c.lru.Get(key) }
func (c *lruCache) Contains(key CacheKey) bool                         { return c.lru.Contains(key) }
func (c *lruCache) Purge()                                             { c.lru.Purge() }

type arcCache struct{ arc *lru.ARCCache }

func (c *arcCache) Add(key CacheKey, value interface{}) (evicted bool) {
	c.arc.Add(key, value)
	return true
}
func (c *arcCache) Get(key CacheKey) (interface{}, bool) { return c.arc.Get(key) }
func (c *arcCache) Contains(key CacheKey) bool           { return c.arc.Contains(key) }
func (c *arcCache) Purge()                               { c.arc.Purge() }

type lruShardCache struct {
	shards         []*lru.Cache
	shardIndexMask int
}

func (c *lruShardCache) Add(key CacheKey, val interface{}) (evicted bool) {
	return c.shards[key.getShardIndex(c.shardIndexMask)].Add(key, val)
}
func (c *lruShardCache) Get(key CacheKey) (interface{}, bool) {
	return c.shards[key.getShardIndex(c.shardIndexMask)].Get(key)
}
func (c *lruShardCache) Contains(key CacheKey) bool {
	return c.shards[key.getShardIndex(c.shardIndexMask)].Contains(key)
}
func (c *lruShardCache) Purge() {
	for _, s := range c.shards {
		shard := s
		go shard.Purge()
	}
}

type CacheConfiger interface {
	newCache() (Cache, error)
}

func NewCache(config CacheConfiger) (Cache, error) {
	if config == nil {
		return nil, errors.New("cache config is nil")
	}
	return config.newCache()
}

type LRUConfig struct{ CacheSize int }

func (c LRUConfig) newCache() (Cache, error) {
	size := c.CacheSize * CacheScale / 100
	l, err := lru.New(size)
	return &lruCache{l}, err
}

type ARCConfig struct{ CacheSize int }

func (c ARCConfig) newCache() (Cache, error) {
	a, err := lru.NewARC(c.CacheSize)
	return &arcCache{a}, err
}

const (
	minShardSize = 10
	minNumShards = 2
)

type LRUShardConfig struct {
	CacheSize int
	NumShards int
}

// newCache mirrors the teacher's power-of-two shard sizing. The UTXO
// state manager (core/utxo) does not call it; it keeps its own shard map
// built on the same scheme so per-key atomicity under one shard's lock
// never serializes unrelated OutputRefs (spec.md §4.2, §5 "concurrent
// hash map... per-key atomicity").
func (c LRUShardConfig) newCache() (Cache, error) {
	size := c.CacheSize * CacheScale / 100
	if size < 1 {
		logger.Error("non-positive cache size", "size", size, "scale", CacheScale)
		return nil, errors.New("must provide a positive cache size")
	}
	numShards := c.numShardsPow2(size)
	shard := &lruShardCache{shards: make([]*lru.Cache, numShards), shardIndexMask: numShards - 1}
	shardSize := size / numShards
	if shardSize < 1 {
		shardSize = 1
	}
	for i := 0; i < numShards; i++ {
		l, err := lru.New(shardSize)
		if err != nil {
			return nil, err
		}
		shard.shards[i] = l
	}
	return shard, nil
}

func (c LRUShardConfig) numShardsPow2(size int) int {
	maxShards := int(math.Max(1, float64(size/minShardSize)))
	n := c.NumShards
	if n > maxShards {
		n = maxShards
	}
	if n < minNumShards {
		return minNumShards
	}
	p := minNumShards
	for p*2 <= n {
		p *= 2
	}
	return p
}
