package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/fieldstream/pkg/cli"
)

const appName = "fieldstream"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	inputFile   string
	outputJSON  bool
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fieldstream",
	Short: "Stream JSON record fields out of LLM generations",
	Long: `fieldstream - incremental field extraction for streamed LLM output.

A relay server forwards an instruction to an upstream model, watches the
generated text and emits each top-level field of the JSON record as soon as
it is complete, one NDJSON line per field.

Configuration is stored in ~/.fieldstream/fieldstream/ and supports multiple
contexts, similar to kubectl's context management.

Examples:
  # Run a relay in front of Gemini
  fieldstream serve -f serve.yaml

  # Point the CLI at it
  fieldstream config add-context local --relay-url http://localhost:8080/v1/generate --credential TOKEN

  # Generate and watch fields arrive
  fieldstream generate -f instruction.yaml

  # Try the extractor on a saved transcript
  fieldstream extract -f output.txt --chunk 3
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.fieldstream/fieldstream/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "input file (default: stdin)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(adaptCmd)
	rootCmd.AddCommand(recordsCmd)
}

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		// serve, extract and adapt work without a config.
		fmt.Fprintf(os.Stderr, "Warning: %s config: %v\n", appName, err)
	}
}

// getConfig returns the global configuration
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// getContext returns the context configuration to use
func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}

	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified. Use -c flag or set a default context with 'fieldstream config use-context'")
		}
		return nil, err
	}

	return ctx, nil
}

// openInput opens the -f file, or stdin when it is empty or "-".
func openInput() (*os.File, error) {
	if inputFile == "" || inputFile == "-" {
		return os.Stdin, nil
	}
	return os.Open(inputFile)
}

// outputResult outputs the result using cli package
func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}

// printVerbose prints verbose output if enabled
func printVerbose(format string, args ...any) {
	cli.PrintVerbose(verbose, format, args...)
}
