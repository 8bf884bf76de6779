package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/fieldstream/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context names one relay endpoint and the credential used to call it.

Configuration is stored in ~/.fieldstream/fieldstream/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  fieldstream config add-context local --relay-url http://localhost:8080/v1/generate
  fieldstream config add-context prod --relay-url https://relay.example.com/v1/generate --credential TOKEN --timeout 300`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		relayURL, err := cmd.Flags().GetString("relay-url")
		if err != nil {
			return fmt.Errorf("failed to read 'relay-url' flag: %w", err)
		}
		if relayURL == "" {
			return fmt.Errorf("--relay-url is required")
		}
		credential, err := cmd.Flags().GetString("credential")
		if err != nil {
			return fmt.Errorf("failed to read 'credential' flag: %w", err)
		}
		timeout, err := cmd.Flags().GetInt("timeout")
		if err != nil {
			return fmt.Errorf("failed to read 'timeout' flag: %w", err)
		}

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(name, &cli.Context{
			RelayURL:   relayURL,
			Credential: credential,
			Timeout:    timeout,
		}); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}

		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts", "list"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tRELAY_URL\tCREDENTIAL")

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, ctx.RelayURL, cli.MaskCredential(ctx.Credential))
		}

		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			fmt.Printf("\n  %s:\n", name)
			fmt.Printf("    Relay URL: %s\n", ctx.RelayURL)
			if ctx.Credential != "" {
				fmt.Printf("    Credential: %s\n", cli.MaskCredential(ctx.Credential))
			}
			if ctx.Timeout > 0 {
				fmt.Printf("    Timeout: %ds\n", ctx.Timeout)
			}
		}
		return nil
	},
}

func init() {
	configAddContextCmd.Flags().String("relay-url", "", "relay generate endpoint URL (required)")
	configAddContextCmd.Flags().String("credential", "", "bearer credential sent to the relay")
	configAddContextCmd.Flags().Int("timeout", 0, "generation timeout in seconds (0 = none)")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
