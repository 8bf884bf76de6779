package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/fieldstream/pkg/cli"
	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/ndjson"
	"github.com/haivivi/fieldstream/pkg/relay"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Send an instruction to a relay and watch fields arrive",
	Long: `Post an instruction payload (JSON, or YAML converted to JSON) to the relay
of the current context and print each field as soon as it is complete. The
final record is written to stdout (or -o) as YAML, or JSON with --json.

Examples:
  fieldstream generate -f instruction.yaml
  fieldstream -c prod generate -f instruction.json --json -o record.json
  fieldstream generate --url http://localhost:8080/v1/generate -f - < in.json`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("url", "", "relay URL (overrides the context)")
	generateCmd.Flags().String("credential", "", "relay credential (overrides the context)")
	generateCmd.Flags().Bool("board", false, "render a field board when the generation ends")
}

// generationResult is what generate prints at the end.
type generationResult struct {
	RequestID string     `json:"request_id" yaml:"request_id"`
	State     string     `json:"state" yaml:"state"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	Fields    cli.Fields `json:"fields" yaml:"fields"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	relayURL, _ := cmd.Flags().GetString("url")
	credential, _ := cmd.Flags().GetString("credential")
	showBoard, _ := cmd.Flags().GetBool("board")

	var timeout time.Duration
	if relayURL == "" {
		c, err := getContext()
		if err != nil {
			return err
		}
		relayURL = c.RelayURL
		if credential == "" {
			credential = c.Credential
		}
		timeout = c.TimeoutDuration()
	}
	if inputFile == "" {
		return fmt.Errorf("-f is required (use - for stdin)")
	}
	instruction, err := cli.LoadInstruction(inputFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	printVerbose("POST %s (%s)", relayURL, cli.FormatBytes(int64(len(instruction))))
	board := cli.NewBoard("fieldstream")
	start := time.Now()
	gen, err := relay.NewClient(relayURL).Generate(ctx, instruction, credential, func(evt fieldx.Event) {
		fmt.Fprintln(os.Stderr, board.Apply(evt))
	})
	if gen == nil {
		return err
	}
	if err != nil {
		if _, ok := ndjson.AsStreamError(err); !ok {
			board.SetStatus("interrupted")
			cli.PrintWarning("generation interrupted: %v", err)
		}
	}
	if gen.State() == ndjson.StateTruncated {
		board.SetStatus("truncated")
		cli.PrintWarning("stream ended without a terminal event; record may be incomplete")
	}
	printVerbose("request %s finished in %s", gen.RequestID, cli.FormatDuration(time.Since(start)))

	if showBoard {
		fmt.Fprintln(os.Stderr, board.Render(72))
	}
	if oerr := outputResult(generationResult{
		RequestID: gen.RequestID,
		State:     gen.State().String(),
		Error:     gen.Err(),
		Fields:    cli.Fields(gen.Fields()),
	}); oerr != nil {
		return oerr
	}
	return err
}
