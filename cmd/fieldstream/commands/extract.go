package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/ndjson"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the field extractor over raw model text",
	Long: `Read generated text from a file or stdin, feed it to the incremental
field extractor in fixed-size chunks and print the resulting NDJSON events.

Useful to check how a saved transcript would have streamed.

Examples:
  fieldstream extract -f output.txt --chunk 3
  echo '{"title":"Soup","tags":["veg"]}' | fieldstream extract`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Int("chunk", 16, "bytes per chunk fed to the extractor")
	extractCmd.Flags().Bool("repair", false, "repair a truncated final object")
}

func runExtract(cmd *cobra.Command, args []string) error {
	chunk, _ := cmd.Flags().GetInt("chunk")
	if chunk <= 0 {
		return fmt.Errorf("--chunk must be positive")
	}
	repair, _ := cmd.Flags().GetBool("repair")

	in, err := openInput()
	if err != nil {
		return err
	}
	defer in.Close()

	var opts []fieldx.Option
	if repair {
		opts = append(opts, fieldx.WithRepair())
	}
	ext := fieldx.NewExtractor(opts...)

	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)
	enc := ndjson.NewEncoder(bw)

	buf := make([]byte, chunk)
	r := bufio.NewReader(in)
	chunks := 0
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			chunks++
			for _, evt := range ext.ProcessChunk(string(buf[:n])) {
				if err := enc.Encode(evt); err != nil {
					return err
				}
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read input: %w", rerr)
		}
	}
	buffered := ext.Buffered()
	for _, evt := range ext.Finalize() {
		if err := enc.Encode(evt); err != nil {
			return err
		}
	}
	printVerbose("%d chunks, %d events, %d bytes buffered at end of input", chunks, enc.Lines(), buffered)
	return bw.Flush()
}
