package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

func newPromptsCommand() *cobra.Command {
	promptsCmd := &cobra.Command{Use: "prompts", Short: "Manage prompt seed files"}
	promptsCmd.AddCommand(newPromptsLintCommand(), newPromptsPublishCommand(), newPromptsPullCommand())
	return promptsCmd
}

func newPromptsLintCommand() *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a prompt seed file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			cfgs, err := prompt.LoadSeedFile(inPath)
			if err != nil {
				return err
			}
			for _, c := range cfgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Key, c.VersionID)
			}
			if !hasGlobalDefault(cfgs) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no global:default:default entry; unmatched keys will fail with no prompt available")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "seed YAML path")
	return cmd
}

func hasGlobalDefault(cfgs []prompt.Config) bool {
	for _, c := range cfgs {
		if c.Key == prompt.GlobalDefault() {
			return true
		}
	}
	return false
}

func newPromptsPublishCommand() *cobra.Command {
	var inPath, ociRef string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a prompt seed to an OCI registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" || ociRef == "" {
				return fmt.Errorf("--in and --oci are required")
			}
			pinned, err := seedPublishFunc(inPath, ociRef)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pinned)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "seed YAML path")
	cmd.Flags().StringVar(&ociRef, "oci", "", "OCI destination")
	return cmd
}

func newPromptsPullCommand() *cobra.Command {
	var ociRef, outPath string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull a prompt seed from an OCI registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ociRef == "" || outPath == "" {
				return fmt.Errorf("--oci and --out are required")
			}
			cfgs, raw, err := seedPullFunc(ociRef)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d prompts)\n", outPath, len(cfgs))
			return nil
		},
	}
	cmd.Flags().StringVar(&ociRef, "oci", "", "OCI source")
	cmd.Flags().StringVar(&outPath, "out", "", "seed output path")
	return cmd
}
