package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/juise/clira/codec"
	"github.com/juise/clira/mux"
	"github.com/juise/clira/mux/frame"
	"github.com/progrium/clon-go"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagCommand string
	flagOp      string
)

var rpcCmd = &cobra.Command{
	Use:   "rpc <target> [key=value...]",
	Short: "Run an RPC against a device behind the mixer",
	Long: `Run an RPC against a device behind the mixer and print its output.

Options after the target are parsed as key=value pairs. The keys command,
payload and op shape the request; any other key is sent as an attribute
of the rpc frame, e.g.

  clira rpc router1 command="show version"
  clira rpc router1 payload="<get-software-information/>" format=text`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRPC,
}

func init() {
	rpcCmd.Flags().StringVarP(&flagCommand, "command", "c", "", "CLI command to run, wrapped in a <command> element")
	rpcCmd.Flags().StringVar(&flagOp, "op", "", "operation of the request frame (default: rpc)")
}

// parseOptions turns trailing key=value arguments into a map.
func parseOptions(args []string) (map[string]interface{}, error) {
	if len(args) == 0 {
		return map[string]interface{}{}, nil
	}
	v, err := clon.Parse(args)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("options must be key=value pairs, got %v", v)
	}
	return m, nil
}

func runRPC(cmd *cobra.Command, args []string) error {
	raw, err := parseOptions(args[1:])
	if err != nil {
		return err
	}
	raw["target"] = args[0]
	if flagCommand != "" {
		raw["command"] = flagCommand
	}
	if flagOp != "" {
		raw["op"] = flagOp
	}
	opts, err := mux.OptionsFrom(raw)
	if err != nil {
		return err
	}

	mcfg := mux.Config{
		URL:      cfg.URL,
		Logger:   logger,
		AuthInit: cfg.AuthInit,
	}
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			return err
		}
		defer f.Close()
		mcfg.Trace = codec.CBORCodec{}.Encoder(f)
	}

	ctx := cmd.Context()
	if cfg.TimeoutDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TimeoutDuration)
		defer cancel()
	}

	m := mux.New(mcfg)
	defer m.Close()

	s := newSession(m, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	opts.Handlers = s.handlers()
	opts.OnClose = s.onClose
	m.Open(ctx)
	if _, err := m.RPC(opts); err != nil {
		return err
	}

	select {
	case err = <-s.done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for %s: %w", args[0], ctx.Err())
	}
	return err
}

// session prints the output of one call and answers its prompts on the
// terminal.
type session struct {
	m      *mux.Muxer
	out    io.Writer
	errOut io.Writer
	tty    *os.File
	in     *bufio.Reader

	once   sync.Once
	done   chan error
	failed bool
}

func newSession(m *mux.Muxer, in io.Reader, out, errOut io.Writer) *session {
	s := &session{
		m:      m,
		out:    out,
		errOut: errOut,
		in:     bufio.NewReader(in),
		done:   make(chan error, 1),
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.tty = f
	}
	return s
}

func (s *session) handlers() mux.Handlers {
	return mux.Handlers{
		frame.OpReply:      s.onOutput,
		frame.OpData:       s.onOutput,
		frame.OpError:      s.onError,
		frame.OpComplete:   s.onComplete,
		frame.OpHostkey:    s.onPrompt,
		frame.OpPassphrase: s.onPrompt,
		frame.OpPassword:   s.onPrompt,
	}
}

func (s *session) finish(err error) {
	s.once.Do(func() { s.done <- err })
}

func (s *session) onOutput(_ *mux.Call, f frame.Frame) {
	s.out.Write(f.Payload)
	if len(f.Payload) > 0 && f.Payload[len(f.Payload)-1] != '\n' {
		io.WriteString(s.out, "\n")
	}
}

func (s *session) onError(_ *mux.Call, f frame.Frame) {
	s.failed = true
	fmt.Fprintf(s.errOut, "error: %s\n", f.Payload)
}

func (s *session) onComplete(call *mux.Call, _ frame.Frame) {
	if s.failed {
		s.finish(fmt.Errorf("rpc on %s failed", call.Target))
		return
	}
	s.finish(nil)
}

func (s *session) onClose(call *mux.Call, err error) {
	s.finish(fmt.Errorf("connection lost before %s completed: %w", call.Target, err))
}

// onPrompt asks the user on the terminal. Host keys are confirmed in the
// clear; passphrases and passwords are read without echo.
func (s *session) onPrompt(call *mux.Call, f frame.Frame) {
	var attrs []frame.Attr
	if reqid, ok := f.Attrs.Get("reqid"); ok {
		attrs = append(attrs, frame.Attr{Key: "reqid", Value: reqid})
	}
	prompt := strings.TrimSpace(string(f.Payload))
	if prompt == "" {
		prompt = f.Op + ":"
	}
	fmt.Fprintf(s.errOut, "%s: %s ", call.Target, prompt)

	answer, err := s.readAnswer(f.Op != frame.OpHostkey)
	if err != nil {
		s.finish(fmt.Errorf("reading %s answer: %w", f.Op, err))
		return
	}

	switch f.Op {
	case frame.OpHostkey:
		err = s.m.Hostkey(call, answer, attrs...)
	case frame.OpPassphrase:
		err = s.m.Psphrase(call, answer, attrs...)
	case frame.OpPassword:
		err = s.m.Psword(call, answer, attrs...)
	}
	if err != nil {
		s.finish(err)
	}
}

func (s *session) readAnswer(secret bool) (string, error) {
	if secret && s.tty != nil {
		b, err := term.ReadPassword(int(s.tty.Fd()))
		fmt.Fprintln(s.errOut)
		return string(b), err
	}
	line, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
