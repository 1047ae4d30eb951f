package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"

	"github.com/IliaW/pay-gate/config"
	"github.com/bradfitz/gomemcache/memcache"
)

// IdentityCache stores resolved crawler identities keyed by User-Agent.
// An empty cached identity is a valid entry and means "not a crawler".
// Entries never go stale within their ttl because the signature table is
// immutable for the process lifetime.
type IdentityCache interface {
	GetIdentity(userAgent string) (string, bool)
	SetIdentity(userAgent, identity string)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) *MemcachedClient {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	err := ss.SetServers(cacheConfig.Servers...)
	if err != nil {
		slog.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
	}
	slog.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to memcached!")

	return c
}

func (mc *MemcachedClient) GetIdentity(userAgent string) (string, bool) {
	key := hashUserAgent(userAgent)
	it, err := mc.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			slog.Debug("identity not cached.", slog.String("key", key))
		} else {
			slog.Error("failed to get identity from cache.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return "", false
	}

	return string(it.Value), true
}

func (mc *MemcachedClient) SetIdentity(userAgent, identity string) {
	item := &memcache.Item{
		Key:        hashUserAgent(userAgent),
		Value:      []byte(identity),
		Expiration: int32((mc.cfg.TtlForIdentity).Seconds()),
	}
	if err := mc.client.Set(item); err != nil {
		slog.Error("failed to cache identity.", slog.String("identity", identity),
			slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func hashUserAgent(userAgent string) string {
	hash := sha256.New()
	hash.Write([]byte(userAgent))
	return hex.EncodeToString(hash.Sum(nil))
}
