package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/alipaykernel/internal/cert"
)

func newCertSNCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "certsn <cert-file>",
		Short: "Print the SN of a certificate",
		Long: `Print the serial number fingerprint of a PEM certificate, as sent in
app_cert_sn or reported in alipay_cert_sn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cert.LoadIdentity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.SN)
			return nil
		},
	}
}

func newRootCertSNCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rootcertsn <bundle-file>",
		Short: "Print the chain SN of a root certificate bundle",
		Long: `Print the alipay_root_cert_sn of a root bundle: the SNs of its RSA
certificates joined by underscores.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sn, ok, err := cert.LoadChainSN(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: bundle contains no RSA certificate", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), sn)
			return nil
		},
	}
}

func newPubKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey <cert-file>",
		Short: "Print the public key of a certificate",
		Long:  "Print the base64 DER public key of a certificate, the form alipay_public_key takes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cert.LoadIdentity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(id.PublicKey))
			return nil
		},
	}
}
