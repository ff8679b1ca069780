package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/scenekeep-go/internal/codec/serializer"
	"github.com/lk2023060901/scenekeep-go/internal/keeper"
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/internal/store"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

func sampleRecord() *snapshot.SelectionRecord {
	return &snapshot.SelectionRecord{
		Nodes: []snapshot.NodeRecord{
			{Snapshot: []byte(`{"name":"P"}`), ContainerPath: "scenes/a.scene", ChildCount: 1, FirstChild: 1},
			{Snapshot: []byte(`{"name":"C"}`), ContainerPath: "scenes/a.scene", FirstChild: 2},
		},
		RootIndices: []int{0},
		RootIDs:     []snapshot.ObjectID{"root"},
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, body string) *Application {
	app := New()
	app.SetConfigPath(writeConfig(t, body))
	require.NoError(t, app.Run())
	return app
}

func TestDefaults(t *testing.T) {
	app := run(t, "{}\n")
	s := app.Settings()
	assert.Equal(t, serializer.KindJSON, s.Codec.Serializer)
	assert.Equal(t, StoreMemory, s.Store.Backend)
	assert.Equal(t, keeper.DefaultKey, s.Restore.Key)
	assert.Equal(t, store.DefaultRedisConfig().ConnectTimeout, s.Store.Redis.ConnectTimeout)

	st, err := app.NewStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)

	c, err := app.NewCodec()
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestSections(t *testing.T) {
	dir := t.TempDir()
	app := run(t, strings.Join([]string{
		"codec:",
		"  serializer: wire",
		"  compression: true",
		"  compression-level: fastest",
		"  encryption: true",
		"  enc-key: " + strings.Repeat("ab", 32),
		"  mac-key: 6d6163",
		"store:",
		"  backend: file",
		"  dir: " + dir,
		"  redis:",
		"    ttl: 90s",
		"restore:",
		"  key: clip",
		"  strict-parents: true",
		"logging:",
		"  keeper:",
		"    level: debug",
		"",
	}, "\n"))

	s := app.Settings()
	assert.Equal(t, serializer.KindWire, s.Codec.Serializer)
	assert.True(t, s.Codec.Compression)
	assert.Equal(t, "1m30s", s.Store.Redis.TTL.String())

	c, err := app.NewCodec()
	require.NoError(t, err)
	data, err := c.Marshal(sampleRecord())
	require.NoError(t, err)
	rec, err := c.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), rec)

	st, err := app.NewStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, st)

	opts := app.KeeperOptions()
	assert.Equal(t, "clip", opts.Key)
	assert.True(t, opts.StrictParents)
	assert.Same(t, app.Logger("keeper"), opts.Logger)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SCENEKEEP_RESTORE_KEY", "from-env")
	app := run(t, "restore:\n  key: from-file\n")
	assert.Equal(t, "from-env", app.Settings().Restore.Key)
}

func TestInvalidConfig(t *testing.T) {
	app := New()
	app.SetConfigPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, app.Run())

	app = run(t, "codec:\n  serializer: xml\n")
	_, err := app.NewCodec()
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	app = run(t, "codec:\n  encryption: true\n  enc-key: zz\n")
	_, err = app.NewCodec()
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	app = run(t, "codec:\n  encryption: true\n  enc-key: abcd\n  mac-key: abcd\n")
	_, err = app.NewCodec()
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	app = run(t, "store:\n  backend: s3\n")
	_, err = app.NewStore(context.Background())
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}
