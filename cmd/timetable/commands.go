package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/source"
)

var (
	outputFormat string
	maxLines     int
	english      bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Inspect a timetable document the way the bot reads it",
	Long: `timetable extracts the text of a timetable document (PDF or plain text,
local or over http) and shows what the bot would build from it: the
institute index and the rendered schedule of a group.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json", "yaml":
			return nil
		default:
			return fmt.Errorf("unknown output format %q (text, json, yaml)", outputFormat)
		}
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <document>",
	Short: "List institutes and their groups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := loadText(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeIndex(cmd.OutOrStdout(), timetable.BuildIndex(text))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <document> <group>",
	Short: "Print the schedule of one group",
	Long: `Print the schedule of one group. The text output is exactly what the bot
sends; json and yaml print the parsed days and slots.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := subscriber.NormalizeGroupInput(args[1])
		if err != nil {
			return err
		}
		text, err := loadText(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeSchedule(cmd.OutOrStdout(), text, group)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log extraction details to stderr")
	showCmd.Flags().IntVar(&maxLines, "max-lines", timetable.DefaultMaxBlockLines, "maximum lines collected for the group")
	showCmd.Flags().BoolVar(&english, "english", false, "use English labels")

	rootCmd.AddCommand(indexCmd, showCmd)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

func loadText(ctx context.Context, location string) (string, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := source.DefaultFetcherConfig(location)
	cfg.MaxAttempts = 2
	cfg.Logger = log

	doc, err := source.NewHTTPFetcher(cfg).Fetch(ctx)
	if err != nil {
		return "", err
	}
	extracted, err := source.NewPDFExtractor(log).Extract(doc.Data)
	if err != nil {
		return "", err
	}
	log.Debug("document extracted",
		"bytes", len(doc.Data),
		"pages", extracted.PageCount,
		"lines", strings.Count(extracted.Text, "\n")+1,
	)
	return extracted.Text, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

func writeIndex(w io.Writer, idx timetable.InstituteIndex) error {
	if outputFormat != "text" {
		return encode(w, query.NewCatalogDTO(0, time.Time{}, idx).Units)
	}

	if idx.IsEmpty() {
		_, err := fmt.Fprintln(w, "no group codes found")
		return err
	}
	for _, unit := range idx.Units() {
		groups := idx.Groups(unit)
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.String()
		}
		if _, err := fmt.Fprintf(w, "%s (%d): %s\n", unit, len(groups), strings.Join(names, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// scheduleOutput is the structured form of one group's schedule.
type scheduleOutput struct {
	Group string          `json:"group" yaml:"group"`
	Found bool            `json:"found" yaml:"found"`
	Days  []timetable.Day `json:"days" yaml:"days"`
	Lines []string        `json:"block,omitempty" yaml:"block,omitempty"`
	Stats map[string]int  `json:"stats,omitempty" yaml:"stats,omitempty"`
}

func writeSchedule(w io.Writer, text string, group timetable.GroupCode) error {
	labels := timetable.RussianLabels()
	if english {
		labels = timetable.DefaultLabels()
	}

	if outputFormat == "text" {
		_, err := fmt.Fprintln(w, timetable.GetSchedule(text, group, maxLines, labels))
		return err
	}

	out := scheduleOutput{Group: group.String(), Days: []timetable.Day{}}
	block, err := timetable.FindBlock(text, group, maxLines)
	if err == nil {
		tt := timetable.Parse(block)
		out.Found = true
		out.Days = tt.Days
		if verbose {
			out.Lines = block
		}
		out.Stats = map[string]int{
			"block_lines": len(block),
			"days":        len(tt.Days),
			"slots":       len(tt.Entries()),
		}
	}
	return encode(w, out)
}

func encode(w io.Writer, v any) error {
	if outputFormat == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
