package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/juise/clira/codec"
	"github.com/juise/clira/mux/frame"
	"github.com/spf13/cobra"
)

var (
	flagPayload string
	flagJSON    bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode <op> <muxid> [key=value...]",
	Short: "Write one mux frame to stdout",
	Long: `Write one mux frame to stdout. The payload is read from stdin unless
--payload is given; key=value pairs become the frame's attributes.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		muxid, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid muxid %q", args[1])
		}
		raw, err := parseOptions(args[2:])
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var attrs frame.Attrs
		for _, k := range keys {
			attrs = append(attrs, frame.Attr{Key: k, Value: fmt.Sprint(raw[k])})
		}

		payload := []byte(flagPayload)
		if !cmd.Flags().Changed("payload") {
			payload, err = io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}

		return frame.NewEncoder(cmd.OutOrStdout()).Encode(frame.Frame{
			Op:      args[0],
			MuxID:   muxid,
			Attrs:   attrs,
			Payload: payload,
		})
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Print the mux frames read from stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dec := frame.NewDecoder(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		enc := codec.JSONCodec{}.Encoder(out)
		for {
			f, err := dec.Decode()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if flagJSON {
				if err := enc.Encode(jsonFrame(f)); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(out, "%s\n%s\n", f, f.Payload)
		}
	},
}

func init() {
	encodeCmd.Flags().StringVarP(&flagPayload, "payload", "p", "", "frame payload")
	decodeCmd.Flags().BoolVar(&flagJSON, "json", false, "print one JSON object per frame")
	replayCmd.Flags().BoolVar(&flagJSON, "json", false, "print one JSON object per frame")
}

type frameJSON struct {
	Dir     string            `json:"dir,omitempty"`
	Op      string            `json:"op"`
	MuxID   uint64            `json:"muxid"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Payload string            `json:"payload"`
}

func jsonFrame(f frame.Frame) frameJSON {
	j := frameJSON{Op: f.Op, MuxID: f.MuxID, Payload: string(f.Payload)}
	if len(f.Attrs) > 0 {
		j.Attrs = make(map[string]string, len(f.Attrs))
		for _, a := range f.Attrs {
			j.Attrs[a.Key] = a.Value
		}
	}
	return j
}
