package main

import (
	"fmt"
	"os"
	"time"

	"github.com/juise/clira/codec"
	"github.com/juise/clira/mux"
	"github.com/juise/clira/mux/frame"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace-file>",
	Short: "Reassemble and print the frames in a trace file",
	Long: `Reassemble and print the frames in a trace file recorded with --trace.

Messages are fed to a reassembler per direction with their recorded chunk
boundaries, so a protocol error is reported exactly where the live
connection saw it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		out := cmd.OutOrStdout()
		enc := codec.JSONCodec{}.Encoder(out)
		res := map[byte]*frame.Reassembler{
			mux.TraceSend: {},
			mux.TraceRecv: {},
		}
		var n int
		err = mux.ReadTrace(codec.CBORCodec{}.Decoder(f), func(rec mux.TraceRecord) error {
			n++
			re, ok := res[rec.Dir]
			if !ok {
				return fmt.Errorf("record %d: unknown direction %q", n, rec.Dir)
			}
			at := time.Unix(0, rec.Time).UTC().Format(time.RFC3339Nano)
			ferr := re.Feed(rec.Data, func(fr frame.Frame) error {
				if flagJSON {
					j := jsonFrame(fr)
					j.Dir = string(rec.Dir)
					return enc.Encode(j)
				}
				_, err := fmt.Fprintf(out, "%s %c %s\n", at, rec.Dir, fr)
				return err
			})
			if ferr != nil {
				return fmt.Errorf("record %d (%c, %d bytes): %w", n, rec.Dir, len(rec.Data), ferr)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for dir, re := range res {
			if re.Buffered() > 0 {
				logger.Warn("trace ends inside a frame", "dir", string(dir), "buffered", re.Buffered(), "remaining", re.Remaining())
			}
		}
		return nil
	},
}
