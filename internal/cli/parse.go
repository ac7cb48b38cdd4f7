package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/chatvault/internal/archive"
	"github.com/kiranshivaraju/chatvault/internal/media"
	"github.com/kiranshivaraju/chatvault/internal/parser"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

var (
	parseSelf     []string
	parseLocation string
)

var parseCmd = &cobra.Command{
	Use:   "parse <transcript.txt|archive.zip>",
	Short: "Parse a transcript and print its messages as JSON",
	Long: `Dry-run the conversation parser. Nothing is written to the database.

Given a zip archive, it is extracted to a temporary directory, the transcript
is selected the way the worker selects it, and attachments are linked to
their messages.

Examples:
  chatctl parse "WhatsApp Chat with Alice.txt"
  chatctl parse export.zip --self "Bob" --tz Europe/Berlin`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringSliceVar(&parseSelf, "self", []string{"you"}, "sender names that denote the exporting user")
	parseCmd.Flags().StringVar(&parseLocation, "tz", "UTC", "time zone transcript timestamps are read in")
}

func runParse(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(parseLocation)
	if err != nil {
		return fmt.Errorf("--tz: %w", err)
	}
	p := parser.New(parser.Options{SelfNames: parseSelf, Location: loc})
	return dryRun(cmd.Context(), p, args[0], cmd.OutOrStdout())
}

// dryRun parses path, a transcript or a zip export, and writes the messages
// to out as indented JSON.
func dryRun(ctx context.Context, p *parser.Parser, path string, out io.Writer) error {
	var messages []models.ParsedMessage

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, err := os.MkdirTemp("", "chatctl-parse-*")
		if err != nil {
			return fmt.Errorf("create temp directory: %w", err)
		}
		defer os.RemoveAll(dir)

		if _, err := archive.Extract(ctx, path, dir, slog.Default()); err != nil {
			return err
		}
		transcript, err := archive.FindTranscript(dir)
		if err != nil {
			return err
		}
		messages, err = p.ParseFile(transcript)
		if err != nil {
			return fmt.Errorf("parse transcript: %w", err)
		}

		candidates, err := archive.ScanMedia(dir)
		if err != nil {
			return err
		}
		assoc := media.NewAssociator(candidates)
		for i, m := range messages {
			messages[i], _ = assoc.Resolve(m)
		}
	} else {
		var err error
		messages, err = p.ParseFile(path)
		if err != nil {
			return fmt.Errorf("parse transcript: %w", err)
		}
	}

	if messages == nil {
		messages = []models.ParsedMessage{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(messages)
}
