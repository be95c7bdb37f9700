package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/tally/internal/config"
	"github.com/hpungsan/tally/internal/errors"
	"github.com/hpungsan/tally/internal/interval"
	"github.com/hpungsan/tally/internal/store"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *store.Database, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "tally",
		Usage:   "Personal time tracker",
		Version: Version,
		Commands: []*cli.Command{
			startCmd(db, cfg),
			stopCmd(db, cfg),
			trackCmd(db, cfg),
			deleteCmd(db),
			modifyCmd(db, cfg),
			undoCmd(db),
			latestCmd(db),
			tagsCmd(db),
			exportCmd(db),
			diagnosticsCmd(db),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// startCmd begins an open interval.
func startCmd(db *store.Database, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start tracking an open interval",
		ArgsUsage: "[START] [TAG...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "annotation", Aliases: []string{"a"}, Usage: "Free-form note"},
		},
		Action: func(c *cli.Context) error {
			args := c.Args().Slice()

			start := time.Now().UTC().Truncate(time.Second)
			if len(args) > 0 {
				if t, err := parseTime(args[0]); err == nil {
					start = t
					args = args[1:]
				}
			}

			iv := interval.NewOpen(start)
			iv.Tags = args
			iv.Annotation = c.String("annotation")

			result, err := db.AddInterval(iv)
			if err != nil {
				return outputError(err)
			}
			if err := db.Commit(); err != nil {
				return outputError(err)
			}

			reportNewTags(cfg, result)
			fmt.Printf("Tracking %s\n", iv.Serialize())
			return nil
		},
	}
}

// stopCmd closes the most recent open interval.
func stopCmd(db *store.Database, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Stop the currently open interval",
		ArgsUsage: "[END]",
		Action: func(c *cli.Context) error {
			latest, err := db.GetLatestEntry()
			if err != nil {
				return outputError(err)
			}
			if latest == "" {
				return outputError(errors.NewInvalidRequest("there is no interval to stop"))
			}

			open, err := interval.FromSerialization(latest)
			if err != nil {
				return outputError(err)
			}
			if !open.IsOpen() {
				return outputError(errors.NewInvalidRequest("the most recent interval is already closed"))
			}

			end := time.Now().UTC().Truncate(time.Second)
			if c.Args().Len() > 0 {
				if end, err = parseTime(c.Args().First()); err != nil {
					return outputError(err)
				}
			}

			closed := open
			closed.End = end
			if err := closed.Validate(); err != nil {
				return outputError(err)
			}

			if err := db.Journal().StartTransaction(); err != nil {
				return outputError(err)
			}
			_, err = db.ModifyInterval(open, closed)
			if endErr := db.Journal().EndTransaction(); err == nil {
				err = endErr
			}
			if err != nil {
				return outputError(err)
			}
			if err := db.Commit(); err != nil {
				return outputError(err)
			}

			fmt.Printf("Recorded %s\n", closed.Serialize())
			return nil
		},
	}
}

// trackCmd records a closed interval.
func trackCmd(db *store.Database, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Record a closed interval after the fact",
		ArgsUsage: "START END [TAG...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "annotation", Aliases: []string{"a"}, Usage: "Free-form note"},
		},
		Action: func(c *cli.Context) error {
			args := c.Args().Slice()
			if len(args) < 2 {
				return outputError(errors.NewInvalidRequest("track requires START and END"))
			}

			start, err := parseTime(args[0])
			if err != nil {
				return outputError(err)
			}
			end, err := parseTime(args[1])
			if err != nil {
				return outputError(err)
			}

			iv := interval.New(start, end)
			iv.Tags = args[2:]
			iv.Annotation = c.String("annotation")
			if err := iv.Validate(); err != nil {
				return outputError(err)
			}

			result, err := db.AddInterval(iv)
			if err != nil {
				return outputError(err)
			}
			if err := db.Commit(); err != nil {
				return outputError(err)
			}

			reportNewTags(cfg, result)
			fmt.Printf("Recorded %s\n", iv.Serialize())
			return nil
		},
	}
}

// deleteCmd removes an interval, by start instant or the latest when no
// arguments are given.
func deleteCmd(db *store.Database) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an interval (the most recent one by default)",
		ArgsUsage: "[START]",
		Action: func(c *cli.Context) error {
			var target interval.Interval
			var err error

			if c.Args().Len() == 0 {
				latest, lerr := db.GetLatestEntry()
				if lerr != nil {
					return outputError(lerr)
				}
				if latest == "" {
					return outputError(errors.NewInvalidRequest("there is no interval to delete"))
				}
				if target, err = interval.FromSerialization(latest); err != nil {
					return outputError(err)
				}
			} else {
				start, perr := parseTime(c.Args().First())
				if perr != nil {
					return outputError(perr)
				}
				if target, err = findByStart(db, start); err != nil {
					return outputError(err)
				}
			}

			if err := db.DeleteInterval(target); err != nil {
				return outputError(err)
			}
			if err := db.Commit(); err != nil {
				return outputError(err)
			}

			fmt.Printf("Deleted %s\n", target.Serialize())
			return nil
		},
	}
}

// modifyCmd rewrites the start or end of an interval. The delete and the
// re-add share one journal transaction so a single undo reverts both.
func modifyCmd(db *store.Database, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "modify",
		Usage:     "Change the start or end of an interval (the most recent by default)",
		ArgsUsage: "[START-OF-TARGET]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Usage: "New start instant"},
			&cli.StringFlag{Name: "end", Usage: "New end instant (\"open\" clears it)"},
		},
		Action: func(c *cli.Context) error {
			if c.String("start") == "" && c.String("end") == "" {
				return outputError(errors.NewInvalidRequest("modify requires --start or --end"))
			}

			var from interval.Interval
			var err error
			if c.Args().Len() > 0 {
				start, perr := parseTime(c.Args().First())
				if perr != nil {
					return outputError(perr)
				}
				if from, err = findByStart(db, start); err != nil {
					return outputError(err)
				}
			} else {
				latest, lerr := db.GetLatestEntry()
				if lerr != nil {
					return outputError(lerr)
				}
				if latest == "" {
					return outputError(errors.NewInvalidRequest("there is no interval to modify"))
				}
				if from, err = interval.FromSerialization(latest); err != nil {
					return outputError(err)
				}
			}

			to := from
			if s := c.String("start"); s != "" {
				if to.Start, err = parseTime(s); err != nil {
					return outputError(err)
				}
			}
			if e := c.String("end"); e != "" {
				if e == "open" {
					to.End = time.Time{}
				} else if to.End, err = parseTime(e); err != nil {
					return outputError(err)
				}
			}
			if err := to.Validate(); err != nil {
				return outputError(err)
			}

			if err := db.Journal().StartTransaction(); err != nil {
				return outputError(err)
			}
			result, merr := db.ModifyInterval(from, to)
			err = merr
			if endErr := db.Journal().EndTransaction(); err == nil {
				err = endErr
			}
			if err != nil {
				return outputError(err)
			}
			if err := db.Commit(); err != nil {
				return outputError(err)
			}

			reportNewTags(cfg, result)
			fmt.Printf("Modified to %s\n", to.Serialize())
			return nil
		},
	}
}

// undoCmd reverts the most recent transaction.
func undoCmd(db *store.Database) *cli.Command {
	return &cli.Command{
		Name:  "undo",
		Usage: "Revert the most recent change",
		Action: func(c *cli.Context) error {
			undone, err := db.Undo()
			if err != nil {
				return outputError(err)
			}
			if !undone {
				fmt.Println("Nothing to undo.")
				return nil
			}
			if err := db.Commit(); err != nil {
				return outputError(err)
			}
			fmt.Println("Undone.")
			return nil
		},
	}
}

// latestCmd prints the most recent interval line.
func latestCmd(db *store.Database) *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Show the most recent interval",
		Action: func(c *cli.Context) error {
			latest, err := db.GetLatestEntry()
			if err != nil {
				return outputError(err)
			}
			if latest == "" {
				fmt.Println("No intervals recorded.")
				return nil
			}
			fmt.Println(latest)
			return nil
		},
	}
}

// tagsCmd prints the tag index as JSON.
func tagsCmd(db *store.Database) *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "List known tags and their usage counts",
		Action: func(c *cli.Context) error {
			counts := make(map[string]uint)
			for _, tag := range db.Tags() {
				count, _ := db.TagCount(tag)
				counts[tag] = count
			}
			return outputJSON(counts)
		},
	}
}

// exportCmd prints every interval as JSON, oldest first.
func exportCmd(db *store.Database) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all intervals as JSON, oldest first",
		Action: func(c *cli.Context) error {
			lines, err := db.AllLinesAscending()
			if err != nil {
				return outputError(err)
			}

			docs := make([]json.RawMessage, 0, len(lines))
			for _, line := range lines {
				iv, perr := interval.FromSerialization(line)
				if perr != nil {
					return outputError(perr)
				}
				docs = append(docs, json.RawMessage(iv.ToJSON()))
			}
			return outputJSON(docs)
		},
	}
}

// diagnosticsCmd reports store internals.
func diagnosticsCmd(db *store.Database) *cli.Command {
	return &cli.Command{
		Name:  "diagnostics",
		Usage: "Show store internals",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "full", Usage: "Include the full line dump"},
		},
		Action: func(c *cli.Context) error {
			fmt.Printf("Location:     %s\n", db.Location())
			fmt.Printf("Data files:   %d\n", len(db.Files()))
			for _, name := range db.Files() {
				fmt.Printf("  %s\n", name)
			}
			fmt.Printf("Tags:         %d\n", len(db.Tags()))
			fmt.Printf("Undo history: %d transactions\n", db.Journal().Size())
			if c.Bool("full") {
				fmt.Print(db.Dump())
			}
			return nil
		},
	}
}

// findByStart locates the unique interval starting at the given instant.
func findByStart(db *store.Database, start time.Time) (interval.Interval, error) {
	var found interval.Interval
	var ok bool

	err := db.Walk(func(line string) bool {
		iv, perr := interval.FromSerialization(line)
		if perr != nil {
			return true
		}
		if iv.Start.Equal(start) {
			found, ok = iv, true
			return false
		}
		return true
	})
	if err != nil {
		return interval.Interval{}, err
	}
	if !ok {
		return interval.Interval{}, errors.NewNotFound("no interval starts at " + start.UTC().Format(interval.TimeLayout))
	}
	return found, nil
}

// reportNewTags prints the "new tag" notices when verbose is enabled. The
// store returns the facts; this layer decides to speak.
func reportNewTags(cfg *config.Config, result store.AddResult) {
	if !cfg.Verbose {
		return
	}
	for _, change := range result.TagChanges {
		if change.WasNew {
			fmt.Printf("Note: %s is a new tag.\n", interval.QuoteIfNeeded(change.Tag))
		}
	}
}

// timeLayouts lists the accepted command-line datetime shapes.
var timeLayouts = []string{
	interval.TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseTime parses a command-line datetime, assuming UTC for layouts that
// carry no zone.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.NewInvalidRequest("unrecognized datetime: " + s)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputError(err error) error {
	if tErr, ok := err.(*errors.TallyError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
