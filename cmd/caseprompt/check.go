package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/caseprompt/internal/app"
	"github.com/ogulcanaydogan/caseprompt/internal/contract"
	"github.com/ogulcanaydogan/caseprompt/internal/evidence"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

type resolveOutput struct {
	Requested string        `json:"requested"`
	Matched   string        `json:"matched"`
	Level     string        `json:"level"`
	Config    prompt.Config `json:"config"`
}

func newResolveCommand() *cobra.Command {
	var scope, category, kind string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which prompt configuration a key resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := prompt.NewKey(scope, category, kind)
			if err := key.Validate(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			backend, err := app.BuildPromptStore(cmd.Context(), cfg, logger.NewNop())
			if err != nil {
				return err
			}
			defer backend.Close()

			res, err := prompt.Resolve(cmd.Context(), backend.Store, key)
			if errors.Is(err, prompt.ErrNoPrompt) {
				return cliError{code: exitNoPrompt, err: err}
			}
			if err != nil {
				return err
			}
			return writeJSONOut(cmd, resolveOutput{
				Requested: res.Requested.String(),
				Matched:   res.Matched.String(),
				Level:     res.Level.String(),
				Config:    res.Config,
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "prompt scope")
	cmd.Flags().StringVar(&category, "category", "", "review category")
	cmd.Flags().StringVar(&kind, "kind", prompt.Default, "prompt kind")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var inPath string
	var maxWords, maxLines int
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a model response against the three-line contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxLines > 0 && maxLines < prompt.DefaultMaxLines {
				return fmt.Errorf("--max-lines must be 0 or at least %d", prompt.DefaultMaxLines)
			}
			var raw []byte
			var err error
			if inPath == "" || inPath == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(inPath)
			}
			if err != nil {
				return err
			}
			res := contract.Validate(string(raw), prompt.Constraints{MaxReasonWords: maxWords, MaxLines: maxLines})
			if err := writeJSONOut(cmd, res); err != nil {
				return err
			}
			if !res.Valid {
				return cliError{code: exitContractInvalid, err: fmt.Errorf("response contract invalid")}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "response text file (default stdin)")
	cmd.Flags().IntVar(&maxWords, "max-reason-words", 0, "Reason word limit (0 = unlimited)")
	cmd.Flags().IntVar(&maxLines, "max-lines", prompt.DefaultMaxLines, "expected line count")
	return cmd
}

func newMatchCommand() *cobra.Command {
	var allow string
	cmd := &cobra.Command{
		Use:   "match [citation...]",
		Short: "Check citations against an evidence allow-list",
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := splitCSV(allow)
			if len(patterns) == 0 {
				return fmt.Errorf("--allow is required")
			}
			res := evidence.Validate(args, patterns)
			if err := writeJSONOut(cmd, res); err != nil {
				return err
			}
			if !res.Valid {
				return cliError{code: exitEvidenceInvalid, err: fmt.Errorf("citations outside allow-list")}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&allow, "allow", "", "comma-separated allow-list patterns, e.g. notes[*].text")
	return cmd
}
