package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/caseprompt/internal/app"
	"github.com/ogulcanaydogan/caseprompt/internal/config"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/shutdown"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			log, err := logger.New(cfg.Env)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx, stop := shutdown.NotifyContext(context.Background())
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newAskCommand() *cobra.Command {
	var casePath, promptText, scope, category, kind, followUp string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Run one case-review question without starting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if casePath == "" || promptText == "" {
				return fmt.Errorf("--case and --prompt are required")
			}
			raw, err := os.ReadFile(casePath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Audit.FilePath = ""
			a, err := app.New(cmd.Context(), cfg, logger.NewNop())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			resp, err := a.Service.Ask(cmd.Context(), types.AskRequest{
				PromptText: promptText,
				Scope:      scope,
				Category:   category,
				Kind:       kind,
				FollowUp:   followUp,
				CaseRecord: json.RawMessage(raw),
			})
			if errors.Is(err, prompt.ErrNoPrompt) {
				return cliError{code: exitNoPrompt, err: err}
			}
			if err != nil {
				return err
			}
			return writeJSONOut(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&casePath, "case", "", "case record JSON file")
	cmd.Flags().StringVar(&promptText, "prompt", "", "question to ask")
	cmd.Flags().StringVar(&scope, "scope", "", "prompt scope")
	cmd.Flags().StringVar(&category, "category", "", "review category")
	cmd.Flags().StringVar(&kind, "kind", prompt.Default, "prompt kind")
	cmd.Flags().StringVar(&followUp, "follow-up", "", "follow-up text used for intent detection")
	return cmd
}

func writeJSONOut(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
