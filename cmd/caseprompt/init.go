package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/caseprompt/internal/config"
	policyrego "github.com/ogulcanaydogan/caseprompt/internal/policy/rego"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
)

const defaultEvidencePolicyYAML = `version: "1"
mode: advisory
categories:
  INF: enforce
always_allowed:
  - caseId
rego: .caseprompt/evidence.rego
`

func newInitCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config, prompt seed, evidence policy and signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stateDir := filepath.Join(dir, ".caseprompt")
			if err := os.MkdirAll(stateDir, 0o755); err != nil {
				return err
			}

			cfg := config.DefaultConfig()
			cfg.Prompts.SeedPath = "prompts.yaml"
			cfg.Evidence.PolicyPath = ".caseprompt/evidence.yaml"
			cfg.Audit.SigningKeyPath = ".caseprompt/signing.pem"
			cfgPath := filepath.Join(dir, config.DefaultPath)
			if !fileExists(cfgPath) {
				if err := config.Write(cfgPath, cfg); err != nil {
					return err
				}
			}

			files := []struct {
				path string
				data []byte
			}{
				{filepath.Join(dir, "prompts.yaml"), prompt.DefaultSeed()},
				{filepath.Join(stateDir, "evidence.yaml"), []byte(defaultEvidencePolicyYAML)},
				{filepath.Join(stateDir, "evidence.rego"), []byte(policyrego.DefaultModule())},
			}
			for _, f := range files {
				if fileExists(f.path) {
					continue
				}
				if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
					return err
				}
			}

			keyPath := filepath.Join(stateDir, "signing.pem")
			if !fileExists(keyPath) {
				pub, err := sign.GeneratePEMPrivateKey(keyPath)
				if err != nil {
					return err
				}
				if err := os.WriteFile(filepath.Join(stateDir, "signing.pub.pem"), []byte(pub), 0o644); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "initialized caseprompt config, prompt seed, evidence policy, and signing key")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "target directory")
	return cmd
}
