package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/caseprompt/internal/report"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
	"github.com/ogulcanaydogan/caseprompt/internal/verify"
)

func newAuditCommand() *cobra.Command {
	auditCmd := &cobra.Command{Use: "audit", Short: "Signed ledger export tools"}
	auditCmd.AddCommand(newAuditVerifyCommand(), newAuditKeygenCommand())
	return auditCmd
}

func newAuditVerifyCommand() *cobra.Command {
	var inPath, trustedKeyPath, format, outPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify signed ledger exports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			opts := verify.Options{SourcePath: inPath}
			if trustedKeyPath != "" {
				raw, err := os.ReadFile(trustedKeyPath)
				if err != nil {
					return err
				}
				opts.TrustedKeyPEM = string(raw)
			}
			r := verify.Run(opts)

			switch format {
			case "json":
				if outPath == "" {
					outPath = "audit-verify.json"
				}
				if err := report.WriteJSON(outPath, r); err != nil {
					return err
				}
			case "md":
				if outPath == "" {
					outPath = "audit-verify.md"
				}
				if err := report.WriteMarkdown(outPath, report.VerificationMarkdown(r)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported format %s", format)
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)

			if !r.Passed {
				return cliError{code: r.ExitCode, err: fmt.Errorf("verification failed")}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "bundle file or directory of *.bundle.json")
	cmd.Flags().StringVar(&trustedKeyPath, "trusted-key", "", "public key PEM bundles must be signed with")
	cmd.Flags().StringVar(&format, "format", "json", "output format (json|md)")
	cmd.Flags().StringVar(&outPath, "out", "", "output report path")
	return cmd
}

func newAuditKeygenCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 signing key for ledger exports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			pub, err := sign.GeneratePEMPrivateKey(outPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "private key output path")
	return cmd
}
