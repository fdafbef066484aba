package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt/source"
)

// Exit codes beyond the verify range.
const (
	exitNoPrompt        = 2
	exitContractInvalid = 3
	exitEvidenceInvalid = 4
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	seedPullFunc    = source.PullSeed
	seedPublishFunc = source.PublishSeed
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "caseprompt",
		Short:         "Clinical case-review prompt gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default $CASEPROMPT_CONFIG or ./caseprompt.yaml)")
	root.AddCommand(newInitCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newResolveCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newMatchCommand())
	root.AddCommand(newPromptsCommand())
	root.AddCommand(newAuditCommand())
	return root
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
