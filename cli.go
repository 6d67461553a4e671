package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/snipvault/snipvault/config"
	snverrors "github.com/snipvault/snipvault/internal/errors"
	"github.com/snipvault/snipvault/internal/types"
	"github.com/snipvault/snipvault/store"
)

// runCLI opens the store in the default base directory and runs one
// subcommand. Subcommands operate the store files directly and assume
// the daemon is not running against the same directory.
func runCLI() {
	baseDir, err := config.DefaultDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: init store: %v\n", err)
		os.Exit(1)
	}

	if err := newCLIApp(st).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newCLIApp builds the CLI application over a store handle. The store
// may be nil for --help and --version, which never reach an action.
func newCLIApp(st *store.Store) *cli.App {
	app := &cli.App{
		Name:    "snipvault",
		Usage:   "Clipboard capture pipeline and snippet store",
		Version: version,
		Commands: []*cli.Command{
			addCmd(st),
			listCmd(st),
			searchCmd(st),
			showCmd(st),
			deleteCmd(st),
			exportCmd(st),
			clearCmd(st),
		},
	}
	// Let Run return errors instead of exiting, so tests can assert on them.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

type listOutput struct {
	Items []types.Item `json:"items"`
	Total int          `json:"total"`
}

type showOutput struct {
	types.Item
	Content string `json:"content"`
}

type deleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type exportOutput struct {
	Path  string `json:"path"`
	Items int    `json:"items"`
}

type clearOutput struct {
	Cleared int `json:"cleared"`
}

// addCmd creates the add command.
func addCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Store a new item (argument or stdin)",
		ArgsUsage: "[text]",
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" && stdinHasData() {
				var err error
				text, err = readStdin()
				if err != nil {
					return outputError(fmt.Errorf("read stdin: %w", err))
				}
			}
			if text == "" {
				return outputError(fmt.Errorf("text is required: pass an argument or pipe stdin"))
			}

			item, err := st.Create(text)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(item)
		},
	}
}

// listCmd creates the list command.
func listCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored items, most recent first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return (0 = all)"},
		},
		Action: func(c *cli.Context) error {
			items := st.List()
			total := len(items)
			if limit := c.Int("limit"); limit > 0 && limit < len(items) {
				items = items[:limit]
			}
			return outputJSON(listOutput{Items: items, Total: total})
		},
	}
}

// searchCmd creates the search command.
func searchCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search items by preview and content",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(fmt.Errorf("query is required"))
			}

			items, err := st.Search(strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(listOutput{Items: items, Total: len(items)})
		},
	}
}

// showCmd creates the show command.
func showCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print one item with its full content",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Aliases: []string{"r"}, Usage: "Print only the content"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(fmt.Errorf("id is required"))
			}
			id := c.Args().First()

			item, err := st.Get(id)
			if err != nil {
				return outputError(err)
			}
			content, err := st.Load(id)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("raw") {
				fmt.Print(content)
				return nil
			}
			return outputJSON(showOutput{Item: item, Content: content})
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete one item",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(fmt.Errorf("id is required"))
			}
			id := c.Args().First()

			if !c.Bool("yes") && !confirm(fmt.Sprintf("Delete item %s?", id)) {
				return cli.Exit("aborted", 1)
			}

			if err := st.Delete(id); err != nil {
				return outputError(err)
			}
			return outputJSON(deleteOutput{ID: id, Deleted: true})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write all items to a plain-text report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Destination directory (default: <base>/exports)"},
		},
		Action: func(c *cli.Context) error {
			count := st.Len()
			path, err := st.Export(c.String("dir"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(exportOutput{Path: path, Items: count})
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every stored item",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			count := st.Len()
			if !c.Bool("yes") && !confirm(fmt.Sprintf("Delete all %d item(s)?", count)) {
				return cli.Exit("aborted", 1)
			}

			if err := st.Clear(); err != nil {
				return outputError(err)
			}
			return outputJSON(clearOutput{Cleared: count})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// outputJSON marshals result to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats an error for the terminal, surfacing pipeline
// error codes when present.
func outputError(err error) error {
	var perr *snverrors.PipelineError
	if errors.As(err, &perr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", perr.Code, perr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// confirm prompts on stderr and reads a y/N answer from stdin. The
// prompt goes to stderr so stdout stays machine-readable.
func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// stdinHasData reports whether stdin has piped data rather than a
// terminal.
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all of stdin, trimming surrounding whitespace.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
