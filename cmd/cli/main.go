package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"goregime/adapters/excel"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/config"
	"goregime/internal/container"
	"goregime/internal/testkit"
	"goregime/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	sheet      string
	logLevel   string
}

func main() {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "goregime",
		Short:         "Identify macroeconomic regimes in time series data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.sheet, "sheet", "", "Worksheet to read from .xlsx inputs (default: first sheet)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts),
		newForecastCmd(opts),
		newReportCmd(opts),
		newDemoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is the loaded configuration, container and input table of one command
type session struct {
	container *container.Container
	table     *timeseries.Table
}

func openSession(ctx context.Context, opts *globalOptions, path string) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = strings.ToUpper(opts.logLevel)
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))

	var reader ports.TableReader = excel.NewDataReader(opts.sheet, logger)
	table, err := reader.ReadTable(path)
	if err != nil {
		return nil, err
	}
	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{container: c, table: table}, nil
}

func (s *session) close() { s.container.Shutdown(context.Background()) }

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var country, out string

	cmd := &cobra.Command{
		Use:   "analyze [data-file]",
		Short: "Identify the current regime of a CSV or XLSX table",
		Long: `Fit a Markov-switching model to the table and print the analysis as JSON.

Example: goregime analyze macro.csv --country US --out result.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.container.Service.Analyze(cmd.Context(), s.table, country)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out, result)
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "Country label recorded with the result")
	cmd.Flags().StringVar(&out, "out", "", "Write the JSON result to this file instead of stdout")
	return cmd
}

func newForecastCmd(opts *globalOptions) *cobra.Command {
	var horizon int

	cmd := &cobra.Command{
		Use:   "forecast [data-file]",
		Short: "Project the most likely regime for the next periods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			defer s.close()

			entries, err := s.container.Service.Forecast(cmd.Context(), s.table, horizon)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MONTH\tREGIME\tPROBABILITY\tCONFIDENCE")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%.3f\t%.3f\n", e.Month, e.Regime, e.Probability, e.Confidence)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&horizon, "horizon", 6, "Number of periods to forecast")
	return cmd
}

func newReportCmd(opts *globalOptions) *cobra.Command {
	var country, htmlOut string
	var horizon int

	cmd := &cobra.Command{
		Use:   "report [data-file]",
		Short: "Render an analysis and forecast as Markdown or HTML",
		Long: `Analyze the table, forecast the next periods and render a report.

Markdown is printed to stdout; --html writes a standalone HTML page.

Example: goregime report macro.xlsx --country DE --horizon 12 --html report.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			defer s.close()

			rep, err := s.container.Service.Report(cmd.Context(), s.table, country, horizon)
			if err != nil {
				return err
			}
			if htmlOut != "" {
				return os.WriteFile(htmlOut, rep.HTML, 0o644)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), rep.Markdown)
			return err
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "Country label recorded with the result")
	cmd.Flags().IntVar(&horizon, "horizon", 6, "Number of periods to forecast")
	cmd.Flags().StringVar(&htmlOut, "html", "", "Write an HTML report to this file")
	return cmd
}

func newDemoCmd() *cobra.Command {
	gen := testkit.DefaultMacroConfig()
	var out string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Write a synthetic macro table alternating expansions and recessions",
		Long: `Generate GDP growth, unemployment and inflation for a seeded synthetic economy.

The file type follows the extension of --out (.csv or .xlsx).

Example: goregime demo --out macro.xlsx --cycles 6 --missing-rate 0.05`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _ := testkit.NewMacroGenerator(gen).Generate()

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := excel.WriteTable(f, table, excel.FileTypeOf(out)); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d periods of %s to %s\n", table.Len(), strings.Join(table.Columns, ", "), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "macro.csv", "Output file (.csv or .xlsx)")
	cmd.Flags().IntVar(&gen.Cycles, "cycles", gen.Cycles, "Expansion/recession cycles")
	cmd.Flags().Int64Var(&gen.Seed, "seed", gen.Seed, "Random seed")
	cmd.Flags().Float64Var(&gen.NoiseScale, "noise", gen.NoiseScale, "Noise standard deviation")
	cmd.Flags().Float64Var(&gen.MissingRate, "missing-rate", gen.MissingRate, "Share of cells left empty")
	cmd.Flags().BoolVar(&gen.IncludeSpikes, "spikes", gen.IncludeSpikes, "Inject outlier spikes")
	return cmd
}

func writeJSON(stdout io.Writer, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
