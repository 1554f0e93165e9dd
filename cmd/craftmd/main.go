package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/craftmd/internal"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/review"
	pkgconfig "github.com/starford/craftmd/pkg/config"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("CRAFTMD_CONFIG_FILE"),
	}
}

// loadConfig reads the config file, if present, and applies command line
// overrides on top of it.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("input") {
		cfg.Input.Path = cmd.String("input")
	}
	if cmd.IsSet("output") {
		cfg.Output.Path = cmd.String("output")
	}
	if cmd.IsSet("offline") {
		cfg.Attachments.Download = !cmd.Bool("offline")
	}
	if cmd.IsSet("frontmatter") {
		cfg.Output.Frontmatter = cmd.Bool("frontmatter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func conversionFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "JSON export to convert"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output vault directory"},
		&cli.BoolFlag{Name: "offline", Usage: "Do not download attachments"},
		&cli.BoolFlag{Name: "frontmatter", Usage: "Write created/modified frontmatter"},
	}
}

func convert(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Convert(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("convert error: %w", err)
	}
	return printJSON(res)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func withReview(fn func(ctx context.Context, cmd *cli.Command, svc *review.Service) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return internal.Review(ctx, func(ctx context.Context, svc *review.Service) error {
			return fn(ctx, cmd, svc)
		}, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	}
}

func reviewList(ctx context.Context, cmd *cli.Command, svc *review.Service) error {
	rows, total, err := svc.List(ctx, models.ReviewStatus(cmd.String("status")), int(cmd.Int("limit")), 0)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Status, r.Path, r.Note)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if total > len(rows) {
		fmt.Fprintf(os.Stderr, "%d of %d documents shown\n", len(rows), total)
	}
	return nil
}

func reviewShow(ctx context.Context, cmd *cli.Command, svc *review.Service) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: review show <path>")
	}
	doc, err := svc.Get(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func reviewSet(ctx context.Context, cmd *cli.Command, svc *review.Service) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: review set <path> <pending|good|bad|manual>")
	}
	row, err := svc.SetStatus(ctx, cmd.Args().Get(0), models.ReviewStatus(cmd.Args().Get(1)),
		cmd.String("note"), cmd.String("checksum"))
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", row.Path, row.Status)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cmd := &cli.Command{
		Name:  "craftmd",
		Usage: "Convert a Craft JSON export into a Markdown vault and track its review",
		Commands: []*cli.Command{
			{
				Name:   "convert",
				Usage:  "Convert the export once and print the run summary",
				Flags:  conversionFlags(),
				Action: convert,
			},
			{
				Name:   "serve",
				Usage:  "Convert, serve the review API and re-convert when the export changes",
				Flags:  conversionFlags(),
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve review tools over MCP (stdio)",
				Flags:  conversionFlags(),
				Action: serveMCP,
			},
			{
				Name:  "review",
				Usage: "Inspect converted documents and record verdicts",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List documents with their review status",
						Flags: []cli.Flag{
							configFlag(),
							&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "pending, good, bad or manual"},
							&cli.IntFlag{Name: "limit", Value: 1000, Usage: "Maximum number of documents"},
						},
						Action: withReview(reviewList),
					},
					{
						Name:      "show",
						Usage:     "Show a converted document with backlinks and diagnostics",
						ArgsUsage: "<path>",
						Flags:     []cli.Flag{configFlag()},
						Action:    withReview(reviewShow),
					},
					{
						Name:      "set",
						Usage:     "Record a review verdict",
						ArgsUsage: "<path> <status>",
						Flags: []cli.Flag{
							configFlag(),
							&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Note shown in the results report"},
							&cli.StringFlag{Name: "checksum", Usage: "Reject the change if the document's checksum differs"},
						},
						Action: withReview(reviewSet),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
