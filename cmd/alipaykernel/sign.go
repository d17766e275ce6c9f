package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/keystore"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
)

type signFlags struct {
	keyFile     string
	key         string
	signType    string
	charset     string
	showContent bool
}

func newSignCommand() *cobra.Command {
	flags := &signFlags{}

	cmd := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Sign request parameters",
		Long: `Canonicalize the given parameters and sign them with the application
private key. The signature is printed in base64.`,
		Example: `  alipaykernel sign --key-file app_private_key.txt \
    app_id=2021000116600000 method=alipay.trade.query \
    'biz_content={"out_trade_no":"20150320010101001"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args)
			if err != nil {
				return err
			}
			return runSign(cmd, flags, params)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.keyFile, "key-file", "", "Application private key file")
	f.StringVar(&flags.key, "key", "", "Application private key (base64 or PEM)")
	f.StringVar(&flags.signType, "sign-type", config.DefaultSignType, "Signature algorithm (RSA2, RSA)")
	f.StringVar(&flags.charset, "charset", config.DefaultCharset, "Charset the content is signed in")
	f.BoolVar(&flags.showContent, "show-content", false, "Print the canonical content before the signature")
	cmd.MarkFlagsMutuallyExclusive("key-file", "key")
	cmd.MarkFlagsOneRequired("key-file", "key")

	return cmd
}

func runSign(cmd *cobra.Command, flags *signFlags, params sign.Params) error {
	alg, err := sign.ParseAlgorithm(flags.signType)
	if err != nil {
		return err
	}
	if _, err := sign.LookupCharset(flags.charset); err != nil {
		return err
	}

	var src keystore.Source
	if flags.keyFile != "" {
		src, err = keystore.NewFileSource(flags.keyFile)
	} else {
		src, err = keystore.NewInlineSource(flags.key)
	}
	if err != nil {
		return err
	}
	key, err := src.PrivateKey(cmd.Context())
	if err != nil {
		return err
	}

	sig, err := sign.NewEngine(sign.WithCharset(flags.charset)).SignParams(params, key, alg)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if flags.showContent {
		fmt.Fprintln(w, sign.Canonicalize(params))
	}
	fmt.Fprintln(w, sig)
	return nil
}

// parseParams turns key=value arguments into parameters. Later
// occurrences of a key win.
func parseParams(args []string) (sign.Params, error) {
	params := make(sign.Params, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, errors.New("parameter must be key=value: " + arg)
		}
		params[k] = v
	}
	return params, nil
}
