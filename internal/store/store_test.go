package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// StoreSuite 对所有 Store 实现运行同一组行为测试。
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func (s *StoreSuite) TestSaveLoadDelete() {
	ctx := context.Background()
	_, ok, err := s.store.Load(ctx, "clip")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Save(ctx, "clip", []byte("v1")))
	s.Require().NoError(s.store.Save(ctx, "clip", []byte("v2")))
	data, ok, err := s.store.Load(ctx, "clip")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]byte("v2"), data)

	s.Require().NoError(s.store.Delete(ctx, "clip"))
	_, ok, err = s.store.Load(ctx, "clip")
	s.Require().NoError(err)
	s.False(ok)
	s.NoError(s.store.Delete(ctx, "clip"))
}

func (s *StoreSuite) TestEmptyKey() {
	ctx := context.Background()
	s.ErrorIs(s.store.Save(ctx, "", nil), merr.ErrParameterMissing)
	_, _, err := s.store.Load(ctx, "")
	s.ErrorIs(err, merr.ErrParameterMissing)
	s.ErrorIs(s.store.Delete(ctx, ""), merr.ErrParameterMissing)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) Store { return NewMemoryStore() }})
}

func TestFileStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	}})
}

func TestRedisStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedisStoreWithClient(client, DefaultRedisConfig())
	}})
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.Save(ctx, "k", buf))
	buf[0] = 'x'
	data, _, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, 1, s.Len())
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "clip", []byte("data")))
	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "clip.snap", entries[0].Name())

	assert.ErrorIs(t, s.Save(ctx, "../evil", nil), merr.ErrParameterInvalid)
	_, err = NewFileStore("")
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestRedisStorePrefixAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.TTL = time.Minute

	s, err := NewRedisStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), "clip", []byte("data")))
	assert.True(t, mr.Exists("scenekeep:clip"))
	assert.Equal(t, time.Minute, mr.TTL("scenekeep:clip"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Load(context.Background(), "clip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStoreWithClient(client, RedisConfig{Attempts: 2})

	mr.SetError("boom")
	err := s.Save(context.Background(), "clip", []byte("data"))
	assert.ErrorIs(t, err, merr.ErrIoFailed)
	_, _, err = s.Load(context.Background(), "clip")
	assert.ErrorIs(t, err, merr.ErrIoFailed)
}

func TestRedisStoreConnectFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.ConnectTimeout = 200 * time.Millisecond
	_, err = NewRedisStore(context.Background(), cfg)
	assert.ErrorIs(t, err, merr.ErrIoFailed)
}
