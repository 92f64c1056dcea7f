package revocation

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qauthteam/qshield/pkg/qerr"
)

const (
	revokedPrefix  = "qauth:revoked:"
	subjectPrefix  = "qauth:subject_revoked:"
	minRedisTTL    = 100 * time.Millisecond
	defaultFarTTL  = 24 * time.Hour * 365 // subject revocation has no natural expiry
)

// RedisStore is a Store backed by Redis: one key per rid with a TTL
// equal to the token's remaining lifetime, so expired revocations
// reclaim themselves.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, qerr.New(qerr.KindInvalidInput, "redis client cannot be nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, qerr.Wrap(qerr.KindRevocation, "redis connection failed", err)
	}
	return &RedisStore{client: client}, nil
}

func revokedKey(rid [16]byte) string {
	return revokedPrefix + hex.EncodeToString(rid[:])
}

func subjectKey(subjectID string) string {
	return subjectPrefix + subjectID
}

// encodeEntryValue packs revokedAt (unix ms) and reason into a single
// string value: "<unix_ms>|<reason_name>|<reason_other>".
func encodeEntryValue(at time.Time, reason Reason) string {
	return fmt.Sprintf("%d|%s|%s", at.UnixMilli(), reason.Name, reason.Other)
}

func decodeEntryValue(v string) (time.Time, Reason, error) {
	parts := strings.SplitN(v, "|", 3)
	if len(parts) != 3 {
		return time.Time{}, Reason{}, qerr.New(qerr.KindRevocation, "malformed revocation record")
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, Reason{}, qerr.Wrap(qerr.KindRevocation, "malformed revocation timestamp", err)
	}
	return time.UnixMilli(ms), Reason{Name: parts[1], Other: parts[2]}, nil
}

func (r *RedisStore) IsRevoked(ctx context.Context, rid [16]byte) (Status, error) {
	val, err := r.client.Get(ctx, revokedKey(rid)).Result()
	if err != nil {
		if err == redis.Nil {
			return Status{}, nil
		}
		return Status{}, qerr.Wrap(qerr.KindRevocation, "redis get failed", err)
	}
	at, reason, err := decodeEntryValue(val)
	if err != nil {
		return Status{}, err
	}
	return Status{Revoked: true, RevokedAt: at, Reason: reason}, nil
}

func (r *RedisStore) Revoke(ctx context.Context, entry Entry) error {
	ttl := time.Until(entry.TokenExpiry)
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}
	val := encodeEntryValue(entry.RevokedAt, entry.Reason)
	if err := r.client.Set(ctx, revokedKey(entry.RevocationID), val, ttl).Err(); err != nil {
		return qerr.Wrap(qerr.KindRevocation, "redis set failed", err)
	}
	return nil
}

func (r *RedisStore) RevokeSubject(ctx context.Context, subjectID string, at time.Time, reason Reason) error {
	val := encodeEntryValue(at, reason)
	if err := r.client.Set(ctx, subjectKey(subjectID), val, defaultFarTTL).Err(); err != nil {
		return qerr.Wrap(qerr.KindRevocation, "redis set failed", err)
	}
	return nil
}

func (r *RedisStore) SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, qerr.Wrap(qerr.KindRevocation, "redis get failed", err)
	}
	at, _, err := decodeEntryValue(val)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// AllRevocationIDs scans every revoked:* key to rebuild the Bloom
// filter. SCAN rather than KEYS, to avoid blocking the server on large
// keyspaces.
func (r *RedisStore) AllRevocationIDs(ctx context.Context) ([][16]byte, error) {
	var out [][16]byte
	iter := r.client.Scan(ctx, 0, revokedPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), revokedPrefix)
		b, err := hex.DecodeString(key)
		if err != nil || len(b) != 16 {
			continue
		}
		var rid [16]byte
		copy(rid[:], b)
		out = append(out, rid)
	}
	if err := iter.Err(); err != nil {
		return nil, qerr.Wrap(qerr.KindRevocation, "redis scan failed", err)
	}
	return out, nil
}

// Cleanup is a no-op for Redis: TTL already reclaims expired keys.
func (r *RedisStore) Cleanup(ctx context.Context) error { return nil }
