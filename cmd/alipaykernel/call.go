package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type callFlags struct {
	biz    string
	pretty bool
}

func newCallCommand(root *cliFlags) *cobra.Command {
	flags := &callFlags{}

	cmd := &cobra.Command{
		Use:   "call <method> [key=value...]",
		Short: "Call a gateway method and print the verified result",
		Long: `Sign and send a call to the gateway, verify the reply and print the
result object. Business parameters come from --biz, a JSON object, and
from key=value arguments, which take precedence.`,
		Example: `  alipaykernel call alipay.trade.query out_trade_no=20150320010101001
  alipaykernel call alipay.trade.query --biz '{"query_options":["trade_settle_info"]}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			biz, err := bizParams(flags.biz, args[1:])
			if err != nil {
				return err
			}
			return runCall(cmd, root, flags, args[0], biz)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.biz, "biz", "", "Business parameters as a JSON object")
	f.BoolVar(&flags.pretty, "pretty", false, "Indent the printed result")

	return cmd
}

func runCall(cmd *cobra.Command, root *cliFlags, flags *callFlags, method string, biz map[string]any) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initApplication(root)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = app.close(shutdownCtx)
	}()

	result, err := app.client.Post(ctx, method, biz)
	if err != nil {
		return err
	}

	out := result.Raw()
	if flags.pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			return err
		}
		out = buf.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// bizParams merges the --biz JSON object with key=value arguments.
// Numbers in the JSON keep their original text.
func bizParams(raw string, args []string) (map[string]any, error) {
	biz := make(map[string]any)
	if raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(&biz); err != nil {
			return nil, fmt.Errorf("--biz must be a JSON object: %w", err)
		}
		if biz == nil {
			biz = make(map[string]any)
		}
	}

	params, err := parseParams(args)
	if err != nil {
		return nil, err
	}
	for k, v := range params {
		biz[k] = v
	}
	return biz, nil
}
