package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/eargollo/archiver/internal/config"
	"github.com/eargollo/archiver/internal/ingest"
	"github.com/eargollo/archiver/internal/pathlist"
	"github.com/eargollo/archiver/internal/store"
)

// cli implements the one-shot subcommands.
type cli struct {
	cfg   *config.Config
	store *store.Store
	mgr   *ingest.Manager
	out   io.Writer
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func (c *cli) profile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("profile: expected create or list")
	}
	switch args[0] {
	case "create":
		name := strings.Join(args[1:], " ")
		p, err := c.store.CreateProfile(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "created profile %d %q\n", p.ID, p.Name)
		return nil
	case "list":
		profiles, err := c.store.ListProfiles(ctx)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Fprintln(c.out, "No profiles found. Create one with: archiver profile create NAME")
			return nil
		}
		tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCREATED")
		for _, p := range profiles {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, humanize.Time(p.CreatedAt))
		}
		return tw.Flush()
	}
	return fmt.Errorf("profile: unknown subcommand %q", args[0])
}

func (c *cli) files(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	profileID := fs.Int64("profile", 0, "profile ID")
	outPath := fs.String("out", "", "write the full table to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := c.store.GetProfile(ctx, *profileID)
	if err != nil {
		return err
	}
	files, err := c.store.ListFiles(ctx, p.ID)
	if err != nil {
		return err
	}

	if *outPath == "" {
		fmt.Fprintf(c.out, "Files in profile %q:\n", p.Name)
		return writeFileTable(c.out, files, true)
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", *outPath, err)
	}
	if err := writeFileTable(f, files, false); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %d records to %s\n", len(files), *outPath)
	return nil
}

// writeFileTable renders records as an aligned table. Terminal output
// truncates long columns; file output keeps them whole.
func writeFileTable(w io.Writer, files []store.FileRecord, truncate bool) error {
	cut := func(s string) string {
		if truncate && utf8.RuneCountInString(s) > 20 {
			return string([]rune(s)[:20]) + "..."
		}
		return s
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tDIGEST\tCREATED\tUPDATED")
	for _, f := range files {
		created, updated := f.CreatedAt.Format(time.DateTime), f.UpdatedAt.Format(time.DateTime)
		if truncate {
			created, updated = humanize.Time(f.CreatedAt), humanize.Time(f.UpdatedAt)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", f.ID, cut(f.FileName), cut(f.Digest), created, updated)
	}
	return tw.Flush()
}

// ingest starts a batch and polls its session on the configured interval,
// printing progress until the batch completes.
func (c *cli) ingest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	profileID := fs.Int64("profile", 0, "profile ID")
	recursive := fs.Bool("r", false, "expand directories into the files beneath them")
	var excludes stringList
	fs.Var(&excludes, "exclude", "path to leave out when expanding (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths := fs.Args()
	if *recursive {
		var err error
		if paths, err = pathlist.Expand(ctx, paths, excludes, c.cfg.Walkers); err != nil {
			return err
		}
	}

	_, sess, err := c.mgr.Start(ctx, *profileID, paths, "cli")
	if err != nil {
		return err
	}

	pr, err := sess.Wait(ctx, c.cfg.PollInterval.Duration, c.cfg.MaxWait.Duration, func(p ingest.PollResult) {
		fmt.Fprintf(os.Stderr, "\ringesting %d/%d", p.Completed, p.Total)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("wait for batch (%d/%d seen): %w", pr.Completed, pr.Total, err)
	}

	// The result is recorded before the terminal signal is sent.
	res, ok := sess.Result()
	if !ok {
		fmt.Fprintf(c.out, "batch complete: %d/%d\n", pr.Completed, pr.Total)
		return nil
	}
	fmt.Fprintf(c.out, "batch %s: %d inserted, %d skipped\n", res.Status(), res.Inserted, len(res.Failures))
	for _, f := range res.Failures {
		fmt.Fprintf(c.out, "  skipped %s (%s): %s\n", f.Path, f.Stage, f.Err)
	}
	return res.Err
}
