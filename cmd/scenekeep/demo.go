package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/scenekeep-go/internal/host/memhost"
	"github.com/lk2023060901/scenekeep-go/internal/keeper"
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

const (
	demoScene  = "scenes/demo.scene"
	lobbyScene = "scenes/lobby.scene"
)

// buildDemoWorld 构造演示场景：
//
//	lobby: Spawn
//	demo:  Player{Weapon, Camera}, Enemy
//
// Player 与 Enemy 挂有启用的 Persist 标记；Weapon 的 Link 指回 Player 与其 Tag，
// Camera 跟随 lobby 中的 Spawn（外部引用），Enemy 跟随 Player（跨根引用）。
func buildDemoWorld() (*memhost.World, error) {
	w := memhost.NewWorld()
	w.AddContainer(lobbyScene)
	w.AddContainer(demoScene)

	spawn, err := w.CreateNode(lobbyScene, "Spawn")
	if err != nil {
		return nil, err
	}
	player, err := w.CreateNode(demoScene, "Player")
	if err != nil {
		return nil, err
	}
	weapon, err := player.AddChild("Weapon")
	if err != nil {
		return nil, err
	}
	camera, err := player.AddChild("Camera")
	if err != nil {
		return nil, err
	}
	enemy, err := w.CreateNode(demoScene, "Enemy")
	if err != nil {
		return nil, err
	}

	tag := &memhost.Tag{Label: "hero", Layer: 1}
	attach := []struct {
		node *memhost.Node
		bag  snapshot.Bag
	}{
		{player, &memhost.Persist{Enabled: true}},
		{player, tag},
		{weapon, &memhost.Link{Label: "grip", From: player, To: tag}},
		{camera, &memhost.Follow{Speed: 5, Target: spawn}},
		{enemy, &memhost.Persist{Enabled: true}},
		{enemy, &memhost.Follow{Speed: 2, Target: player}},
	}
	for _, a := range attach {
		if err := a.node.Attach(a.bag); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// revert 模拟会话结束后宿主回到旧状态。
func revert(w *memhost.World) error {
	player, ok := w.Find(demoScene, "Player")
	if !ok {
		return merr.WrapErrParameterInvalidMsg("demo player missing")
	}
	player.Name = "Player (reverted)"
	if tag, ok := memhost.BagOf[*memhost.Tag](player); ok {
		tag.Label = "stale"
	}
	if weapon, ok := w.Find(demoScene, "Player (reverted)/Weapon"); ok {
		return w.Destroy(weapon)
	}
	return nil
}

func printTree(out io.Writer, w *memhost.World, path string) {
	fmt.Fprintf(out, "%s:\n", path)
	w.Walk(path, func(n *memhost.Node) bool {
		depth := 0
		for p := n.ParentNode(); p != nil; p = p.ParentNode() {
			depth++
		}
		bags := lo.FilterMap(n.Bags(), func(b snapshot.Bag, _ int) (string, bool) {
			if b == nil {
				return "", false
			}
			return b.TypeID().Name, true
		})
		fmt.Fprintf(out, "%s- %s [%s]\n", strings.Repeat("  ", depth+1), n.Name, strings.Join(bags, ", "))
		return true
	})
}

func newDemoCommand(c *cli) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a save/restore round trip on an in-memory scene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			world, err := buildDemoWorld()
			if err != nil {
				return err
			}
			engine, err := snapshot.New(snapshot.Options{
				Host:     world,
				Registry: memhost.Registry(),
				Logger:   c.app.Logger("snapshot"),
			})
			if err != nil {
				return err
			}
			cd, err := c.app.NewCodec()
			if err != nil {
				return err
			}
			st, err := c.app.NewStore(ctx)
			if err != nil {
				return err
			}
			opts := c.app.KeeperOptions()
			opts.Engine, opts.Codec, opts.Store = engine, cd, st
			k, err := keeper.New(opts)
			if err != nil {
				return err
			}

			selection := func() []snapshot.Node {
				roots, _ := keeper.Select(world.Marked(), memhost.IsMarked)
				return roots
			}

			n, err := k.Save(ctx, selection())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %d bytes under %q\n", n, k.Key())

			if outPath != "" {
				data, ok, err := st.Load(ctx, k.Key())
				if err != nil {
					return err
				}
				if ok {
					if err := os.WriteFile(outPath, data, 0o644); err != nil {
						return merr.WrapErrIoFailed(outPath, err)
					}
					fmt.Fprintf(out, "record written to %s\n", outPath)
				}
			}

			if err := revert(world); err != nil {
				return err
			}
			outcome, err := k.Restore(ctx, selection())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "restore: %s, %d roots, %d diagnostics\n",
				outcome.Status, len(outcome.Result.Roots), len(outcome.Result.Diagnostics))
			for _, d := range outcome.Result.Diagnostics {
				fmt.Fprintf(out, "  %s at node %d: %s\n", d.Kind, d.Node, d.Detail)
			}
			printTree(out, world, lobbyScene)
			printTree(out, world, demoScene)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "also write the encoded record to this file")
	return cmd
}
