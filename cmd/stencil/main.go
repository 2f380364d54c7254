// Stencil CLI — инструмент командной строки для запуска flow
// локально и управления сервером через HTTP API.
//
// Использование:
//
//	stencil [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run        Запустить flow из каталога YAML без сервера
//	validate   Проверить каталог YAML
//	template   Шаблоны на сервере
//	flow       Flow на сервере
//	execution  Execution на сервере
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stencil/internal/cli"
	"github.com/shaiso/Stencil/internal/config"
	"github.com/shaiso/Stencil/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, cli.ErrExecutionUnsuccessful) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL     string
		configPath string
		jsonOutput bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "stencil",
		Short:         "Stencil CLI — flows with reusable task templates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API server URL (default from config, http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to stencil.yaml")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log runner events to stderr")

	loadConfig := func() *config.Config {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Warning: config:", err)
			cfg = &config.Config{}
			cfg.API.URL = "http://localhost:8080"
			cfg.Runner.Parallelism = 1
		}
		return cfg
	}

	clientFn := func() *cli.Client {
		if apiURL != "" {
			return cli.NewClient(apiURL)
		}
		return cli.NewClient(loadConfig().API.URL)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	localFn := func() cli.LocalOptions {
		cfg := loadConfig()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: telemetry.ParseLevel(cfg.Log.Level),
			}))
		}
		return cli.LocalOptions{
			Parallelism:       cfg.Runner.Parallelism,
			ContinueOnFailure: cfg.Runner.ContinueOnFailure,
			Logger:            logger,
		}
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(localFn, outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewTemplateCmd(clientFn, outputFn),
		cli.NewFlowCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
	)

	return rootCmd
}
