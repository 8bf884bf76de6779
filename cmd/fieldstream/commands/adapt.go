package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/fieldstream/pkg/upstream"
)

var adaptCmd = &cobra.Command{
	Use:   "adapt",
	Short: "Extract text deltas from a raw provider response body",
	Long: `Read a raw streaming response body (a Gemini JSON array, OpenAI or
Anthropic SSE, ...) from a file or stdin and print the text deltas found in
its envelopes, one per line as JSON strings. With --text the deltas are
concatenated instead, which gives back the generated text.

Known providers: ` + strings.Join(upstream.ProviderNames(), ", ") + `

Examples:
  curl -sN ... | fieldstream adapt --provider openai
  fieldstream adapt -f body.txt --delta-path '.out.text' --error-path '.err'`,
	RunE: runAdapt,
}

func init() {
	adaptCmd.Flags().String("provider", "gemini", "envelope preset")
	adaptCmd.Flags().String("delta-path", "", "custom jq path of the text delta (overrides --provider)")
	adaptCmd.Flags().String("error-path", "", "custom jq path of an in-band error message")
	adaptCmd.Flags().Bool("text", false, "print the concatenated text instead of one delta per line")
}

func providerFromFlags(cmd *cobra.Command) (*upstream.Provider, error) {
	name, _ := cmd.Flags().GetString("provider")
	deltaPath, _ := cmd.Flags().GetString("delta-path")
	errorPath, _ := cmd.Flags().GetString("error-path")
	if deltaPath != "" {
		return upstream.ParseProvider("custom", deltaPath, errorPath)
	}
	return upstream.LookupProvider(name)
}

func runAdapt(cmd *cobra.Command, args []string) error {
	provider, err := providerFromFlags(cmd)
	if err != nil {
		return err
	}
	asText, _ := cmd.Flags().GetBool("text")

	in, err := openInput()
	if err != nil {
		return err
	}
	defer in.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	adapter := upstream.NewAdapter(provider)
	buf := make([]byte, 4096)
	count := 0
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			deltas, ferr := adapter.Feed(buf[:n])
			for _, d := range deltas {
				count++
				if asText {
					out.WriteString(d)
					continue
				}
				line, _ := json.Marshal(d)
				out.Write(line)
				out.WriteByte('\n')
			}
			if ferr != nil {
				out.Flush()
				return ferr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read input: %w", rerr)
		}
	}
	if dropped := adapter.Flush(); dropped > 0 {
		printVerbose("dropped %d bytes of incomplete envelope", dropped)
	}
	if asText {
		out.WriteByte('\n')
	}
	printVerbose("%d deltas", count)
	return nil
}
