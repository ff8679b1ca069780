package main

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/lk2023060901/scenekeep-go/application"
	"github.com/lk2023060901/scenekeep-go/internal/codec/framer"
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	zlog "github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// cli 保存命令之间共享的状态。
type cli struct {
	configPath string
	verbose    bool
	app        *application.Application
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "scenekeep",
		Short: "Snapshot and restore scene-graph selections",
		Long: `scenekeep captures selected subtrees of a scene graph into a self-contained
record and rebuilds them later, preserving references inside the selection
and to objects outside of it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.app = application.New()
			if c.configPath != "" {
				c.app.SetConfigPath(c.configPath)
			}
			if err := c.app.Run(); err != nil {
				return err
			}
			if c.verbose && zlog.GetLevel() > zapcore.DebugLevel {
				zlog.SetLevel(zapcore.DebugLevel)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			// stdout/stderr 上的 Sync 在部分平台返回 EINVAL，忽略。
			_ = zlog.Sync()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./config.yaml, env SCENEKEEP_CONFIG_FILE_PATH)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newInspectCommand(c))
	root.AddCommand(newValidateCommand(c))
	root.AddCommand(newDemoCommand(c))
	return root
}

// readRecord 读取并解码记录文件。
func (c *cli) readRecord(path string) (*snapshot.SelectionRecord, *framer.Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, merr.WrapErrIoFailed(path, err)
	}
	cd, err := c.app.NewCodec()
	if err != nil {
		return nil, nil, err
	}
	return cd.Decode(bytes.NewReader(data))
}
