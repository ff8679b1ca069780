package main

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/scenekeep-go/internal/codec/framer"
	"github.com/lk2023060901/scenekeep-go/internal/json"
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
)

// summary 是 inspect 输出的记录概要。
type summary struct {
	Version     string         `json:"version"`
	Serializer  string         `json:"serializer"`
	Compressed  bool           `json:"compressed"`
	Encrypted   bool           `json:"encrypted"`
	EncodedAt   string         `json:"encodedAt,omitempty"`
	Roots       int            `json:"roots"`
	Nodes       int            `json:"nodes"`
	Objects     int            `json:"objects"`
	FoundStatic bool           `json:"foundStatic"`
	Containers  []string       `json:"containers"`
	BagTypes    map[string]int `json:"bagTypes"`
	ExternalRef int            `json:"externalRefs"`
	InternalRef int            `json:"internalRefs"`
}

func summarize(rec *snapshot.SelectionRecord, h *framer.Header) summary {
	s := summary{
		Version:     h.Version,
		Serializer:  h.Serializer,
		Compressed:  h.Flags.Has(framer.FlagCompressed),
		Encrypted:   h.Flags.Has(framer.FlagEncrypted),
		Roots:       len(rec.RootIndices),
		Nodes:       len(rec.Nodes),
		Objects:     rec.ObjectCount(),
		FoundStatic: rec.FoundStatic,
		BagTypes:    make(map[string]int),
	}
	if h.Timestamp > 0 {
		s.EncodedAt = time.UnixMilli(h.Timestamp).UTC().Format(time.RFC3339)
	}
	s.Containers = lo.Uniq(lo.Map(rec.Nodes, func(n snapshot.NodeRecord, _ int) string { return n.ContainerPath }))
	for _, n := range rec.Nodes {
		for _, b := range n.Bags {
			s.BagTypes[b.Type.String()]++
			for _, ref := range b.Refs {
				switch ref.Kind {
				case snapshot.RefInternal:
					s.InternalRef++
				case snapshot.RefExternal:
					s.ExternalRef++
				}
			}
		}
	}
	return s
}

func newInspectCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a saved record and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, header, err := c.readRecord(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(summarize(rec, header), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
