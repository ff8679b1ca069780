package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/internal/codec"
	"github.com/lk2023060901/scenekeep-go/internal/codec/compressor"
	"github.com/lk2023060901/scenekeep-go/internal/codec/crypto"
	"github.com/lk2023060901/scenekeep-go/internal/codec/framer"
	"github.com/lk2023060901/scenekeep-go/internal/codec/serializer"
	"github.com/lk2023060901/scenekeep-go/internal/keeper"
	"github.com/lk2023060901/scenekeep-go/internal/store"
	zlog "github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
	zviper "github.com/lk2023060901/scenekeep-go/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "SCENEKEEP_CONFIG_FILE_PATH"
	envPrefix         = "SCENEKEEP"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// CodecConfig is the "codec" section.
type CodecConfig struct {
	Serializer       string `mapstructure:"serializer"`
	Compression      bool   `mapstructure:"compression"`
	CompressionLevel string `mapstructure:"compression-level"`
	MinCompressSize  int    `mapstructure:"min-compress-size"`
	Encryption       bool   `mapstructure:"encryption"`
	// EncKey and MacKey are hex encoded. EncKey must decode to 32 bytes.
	EncKey       string `mapstructure:"enc-key"`
	MacKey       string `mapstructure:"mac-key"`
	MaxFrameSize uint32 `mapstructure:"max-frame-size"`
}

// StoreConfig is the "store" section.
type StoreConfig struct {
	Backend string            `mapstructure:"backend"`
	Dir     string            `mapstructure:"dir"`
	Redis   store.RedisConfig `mapstructure:"redis"`
}

// RestoreConfig is the "restore" section.
type RestoreConfig struct {
	Key           string `mapstructure:"key"`
	RescueKey     string `mapstructure:"rescue-key"`
	StrictParents bool   `mapstructure:"strict-parents"`
}

// Settings is the typed view of the configuration file.
type Settings struct {
	Codec   CodecConfig   `mapstructure:"codec"`
	Store   StoreConfig   `mapstructure:"store"`
	Restore RestoreConfig `mapstructure:"restore"`
}

// Application is the runtime container for scenekeep.
// It owns configuration and builds the codec, store and keeper options from it.
type Application struct {
	configPath string
	cfg        *zviper.Config
	settings   Settings
	loggers    map[string]*zlog.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// SetConfigPath overrides config path resolution. It must be called before Run.
func (a *Application) SetConfigPath(path string) {
	a.configPath = path
}

// Run loads configuration and initializes logging.
// The config file path is resolved with the following priority:
//  1. Default: ./config.yaml (a missing default file is not an error)
//  2. Env: SCENEKEEP_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//  4. SetConfigPath
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	if err := a.cfg.Unmarshal(&a.settings); err != nil {
		return errors.Wrap(err, "unmarshal settings")
	}
	zlog.Debug("application configured",
		zap.String("serializer", a.settings.Codec.Serializer),
		zap.String("store", a.settings.Store.Backend))
	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Settings returns the typed configuration.
func (a *Application) Settings() Settings {
	return a.settings
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger with a module field.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// NewCodec builds a codec from the "codec" section.
func (a *Application) NewCodec() (*codec.Codec, error) {
	cc := a.settings.Codec
	s, err := serializer.ByKind(cc.Serializer)
	if err != nil {
		return nil, err
	}
	opts := codec.Options{
		Framer:            framer.NewLengthPrefixedFramer(cc.MaxFrameSize),
		Serializer:        s,
		EnableCompression: cc.Compression,
		EnableEncryption:  cc.Encryption,
	}
	if cc.Compression {
		zc, err := compressor.NewZstdCompressor(cc.CompressionLevel, 0)
		if err != nil {
			return nil, errors.Wrap(err, "new zstd compressor")
		}
		zc.SetMinCompressSize(cc.MinCompressSize)
		opts.Compressor = zc
	}
	if cc.Encryption {
		encKey, err := hex.DecodeString(cc.EncKey)
		if err != nil {
			return nil, merr.WrapErrParameterInvalidMsg("codec.enc-key is not hex: %s", err)
		}
		macKey, err := hex.DecodeString(cc.MacKey)
		if err != nil {
			return nil, merr.WrapErrParameterInvalidMsg("codec.mac-key is not hex: %s", err)
		}
		enc, err := crypto.NewAESGCMHMACCodec(encKey, macKey)
		if err != nil {
			return nil, merr.WrapErrParameterInvalidMsg("codec keys: %s", err)
		}
		opts.Encryptor = enc
	}
	return codec.New(opts)
}

// NewStore builds the record store from the "store" section.
func (a *Application) NewStore(ctx context.Context) (store.Store, error) {
	sc := a.settings.Store
	switch sc.Backend {
	case StoreMemory, "":
		return store.NewMemoryStore(), nil
	case StoreFile:
		return store.NewFileStore(sc.Dir)
	case StoreRedis:
		ctx = zlog.WithCtxLogger(ctx, a.Logger("store"))
		return store.NewRedisStore(ctx, sc.Redis)
	default:
		return nil, merr.WrapErrParameterInvalid("memory|file|redis", sc.Backend, "unknown store backend")
	}
}

// KeeperOptions returns keeper options filled from the "restore" section.
// Engine, Codec and Store are left for the caller.
func (a *Application) KeeperOptions() keeper.Options {
	rc := a.settings.Restore
	return keeper.Options{
		Key:           rc.Key,
		RescueKey:     rc.RescueKey,
		StrictParents: rc.StrictParents,
		Logger:        a.Logger("keeper"),
	}
}

// resolveConfigPath returns the config path and whether it was chosen explicitly.
func (a *Application) resolveConfigPath() (string, bool, error) {
	if a.configPath != "" {
		return a.configPath, true, nil
	}
	configPath, explicit := defaultConfigPath, false
	if envPath := os.Getenv(configPathEnv); envPath != "" {
		configPath, explicit = envPath, true
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, fmt.Errorf("missing value after --config")
			}
			configPath, explicit = args[i+1], true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath, explicit = val, true
			}
		}
	}
	return configPath, explicit, nil
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath, explicit, err := a.resolveConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := zviper.New()
	setDefaults(cfg)
	cfg.BindEnvPrefix(envPrefix)

	if _, statErr := os.Stat(configPath); statErr != nil && !explicit && os.IsNotExist(statErr) {
		return cfg, nil
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	return cfg, nil
}

func setDefaults(cfg *zviper.Config) {
	redis := store.DefaultRedisConfig()
	defaults := map[string]any{
		"codec.serializer":            serializer.KindJSON,
		"codec.compression":           false,
		"codec.compression-level":     "default",
		"codec.min-compress-size":     0,
		"codec.encryption":            false,
		"codec.enc-key":               "",
		"codec.mac-key":               "",
		"codec.max-frame-size":        0,
		"store.backend":               StoreMemory,
		"store.dir":                   "./.scenekeep",
		"store.redis.addr":            redis.Addr,
		"store.redis.password":        "",
		"store.redis.db":              0,
		"store.redis.prefix":          redis.Prefix,
		"store.redis.ttl":             redis.TTL,
		"store.redis.connect-timeout": redis.ConnectTimeout,
		"store.redis.attempts":        redis.Attempts,
		"restore.key":                 keeper.DefaultKey,
		"restore.rescue-key":          "",
		"restore.strict-parents":      false,
	}
	for k, v := range defaults {
		cfg.SetDefault(k, v)
	}
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv configures the process-wide logger based on SCENEKEEP_LOG_* env vars.
//
//   - SCENEKEEP_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - SCENEKEEP_LOG_LEVEL: log level (default "info").
//   - SCENEKEEP_LOG_STDOUT: whether to log to stdout (default false).
//   - SCENEKEEP_LOG_FILE_DIR: log directory.
//   - SCENEKEEP_LOG_FILE: log file name (empty means no file).
//   - SCENEKEEP_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("SCENEKEEP_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:  getenvDefault("SCENEKEEP_LOG_LEVEL", "info"),
		Format: getenvDefault("SCENEKEEP_LOG_FORMAT", zlog.FormatText),
		Stdout: getenvBool("SCENEKEEP_LOG_STDOUT", false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SCENEKEEP_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SCENEKEEP_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from the "logging" key.
//
// Example:
//
//	logging:
//	  keeper:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: keeper.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil || !a.cfg.IsSet("logging") {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
