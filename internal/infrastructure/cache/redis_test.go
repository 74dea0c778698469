package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setCall struct {
	key   string
	value interface{}
	ttl   time.Duration
}

type fakeStore struct {
	values map[string]string
	getErr error
	sets   []setCall
}

func (f *fakeStore) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.sets = append(f.sets, setCall{key: key, value: value, ttl: ttl})
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func TestEventCacheMissIsNotSeen(t *testing.T) {
	c := &EventCache{RDB: &fakeStore{values: map[string]string{}}}
	seen, err := c.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEventCacheRememberThenSeen(t *testing.T) {
	fs := &fakeStore{values: map[string]string{}}
	c := &EventCache{RDB: fs}

	require.NoError(t, c.Remember(context.Background(), "evt_1", "created"))
	require.Len(t, fs.sets, 1)
	assert.Equal(t, "stripe:event:evt_1", fs.sets[0].key)
	assert.Equal(t, "created", fs.sets[0].value)
	assert.Equal(t, DefaultEventTTL, fs.sets[0].ttl)

	seen, err := c.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestEventCacheCustomTTL(t *testing.T) {
	fs := &fakeStore{values: map[string]string{}}
	c := &EventCache{RDB: fs, TTL: time.Hour}
	require.NoError(t, c.Remember(context.Background(), "evt_2", "duplicate"))
	assert.Equal(t, time.Hour, fs.sets[0].ttl)
}

func TestEventCacheLookupErrorPropagates(t *testing.T) {
	c := &EventCache{RDB: &fakeStore{values: map[string]string{}, getErr: errors.New("i/o timeout")}}
	seen, err := c.Seen(context.Background(), "evt_1")
	assert.Error(t, err)
	assert.False(t, seen)
}
