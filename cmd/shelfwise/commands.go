package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/config"
	"github.com/kalambet/shelfwise/internal/library"
	"github.com/kalambet/shelfwise/internal/weread"
)

// sessionApp loads the app and fails unless a reader session is configured.
func sessionApp() (*app, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	if _, err := a.requireSession(); err != nil {
		return nil, err
	}
	return a, nil
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reading statistics derived from the shelf",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := sessionApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		stats, err := a.library.ReadingStats(ctx, a.session)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), stats, func(w io.Writer) {
			printStatus(w, "Books", "%d", stats.TotalBooks)
			printStatus(w, "Finished", "%d", stats.FinishedBooks)
			printStatus(w, "Reading", "%d", stats.ReadingBooks)
			printStatus(w, "Reading time", "%s", formatSeconds(stats.TotalReadingTime))
			printStatus(w, "Average", "%s per book", formatSeconds(stats.AverageReadingTime))
			printStatus(w, "Words", "%d", stats.TotalWords)
		})
	},
}

// --- shelf ---

var shelfCmd = &cobra.Command{
	Use:   "shelf",
	Short: "List every book on the shelf",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := sessionApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		shelf, err := a.library.Shelf(ctx, a.session)
		if err != nil {
			return err
		}
		if shelf == nil {
			shelf = []weread.Book{}
		}
		return render(cmd.OutOrStdout(), shelf, func(w io.Writer) {
			for _, b := range shelf {
				mark := " "
				if b.Finished {
					mark = colorize(successStyle, "✓")
				}
				fmt.Fprintf(w, "%s %s %s %s\n", mark, colorize(titleStyle, "《"+b.Title+"》"), b.Author, colorize(dimStyle, b.BookID))
			}
			fmt.Fprintf(w, "%d books\n", len(shelf))
		})
	},
}

// --- recent ---

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List books read in the last 30 days with their progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := sessionApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		shelf, err := a.library.Shelf(ctx, a.session)
		if err != nil {
			return err
		}
		recent := a.library.RecentBooks(ctx, a.session, shelf)
		if limit > 0 && len(recent) > limit {
			recent = recent[:limit]
		}
		if recent == nil {
			recent = []library.RecentBook{}
		}
		return render(cmd.OutOrStdout(), recent, func(w io.Writer) {
			if len(recent) == 0 {
				fmt.Fprintln(w, "No books read in the last 30 days.")
				return
			}
			for _, b := range recent {
				fmt.Fprintf(w, "%3d%%  %s %s %s\n", b.Progress, colorize(titleStyle, "《"+b.Title+"》"), b.Author,
					colorize(dimStyle, b.LastRead.Local().Format(time.DateOnly)))
			}
		})
	},
}

func init() {
	recentCmd.Flags().Int("limit", 0, "maximum number of books (0 = all)")
}

// --- notes ---

var notesCmd = &cobra.Command{
	Use:   "notes [bookId]",
	Short: "Show notes of one book, or of the most recent notebooks",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := sessionApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if len(args) == 1 {
			bundle, err := a.library.NotesForBook(ctx, a.session, args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), bundle, func(w io.Writer) { writeBundle(w, bundle) })
		}

		bundles, err := a.library.Notes(ctx, a.session)
		if err != nil {
			return err
		}
		if bundles == nil {
			bundles = []library.NoteBundle{}
		}
		return render(cmd.OutOrStdout(), bundles, func(w io.Writer) {
			for i, b := range bundles {
				if i > 0 {
					fmt.Fprintln(w)
				}
				writeBundle(w, b)
			}
		})
	},
}

func writeBundle(w io.Writer, b library.NoteBundle) {
	fmt.Fprintf(w, "%s %s\n", colorize(titleStyle, "《"+b.Book.Title+"》"), b.Book.Author)
	if len(b.Notes) == 0 {
		fmt.Fprintln(w, colorize(dimStyle, "  (no notes)"))
		return
	}
	var chapter int64 = -1
	for _, n := range b.Notes {
		if n.ChapterUID != chapter {
			chapter = n.ChapterUID
			fmt.Fprintf(w, "  %s\n", colorize(labelStyle, n.ChapterTitle))
		}
		fmt.Fprintf(w, "    [%s] %s\n", composer.NoteLabel(n.Type), n.Text)
	}
}

// --- chapters ---

var chaptersCmd = &cobra.Command{
	Use:   "chapters <bookId>",
	Short: "List the chapters of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := sessionApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		chapters, err := a.library.Chapters(ctx, a.session, args[0])
		if err != nil {
			return err
		}
		if chapters == nil {
			chapters = []weread.Chapter{}
		}
		return render(cmd.OutOrStdout(), chapters, func(w io.Writer) {
			for _, c := range chapters {
				indent := strings.Repeat("  ", max(c.Level-1, 0))
				fmt.Fprintf(w, "%3d  %s%s\n", c.Index, indent, c.Title)
			}
		})
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the reading assistant",
	Long: `Ask the reading assistant a question. With --book, the books' details
(and, for a single book, its notes) are sent as context; this needs a
configured WeRead cookie.

Without an assistant API key the answer comes from built-in fallbacks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		books, _ := cmd.Flags().GetStringSlice("book")
		stream, _ := cmd.Flags().GetBool("stream")
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question is required")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var contextText string
		if len(books) > 0 {
			s, err := a.requireSession()
			if err != nil {
				return err
			}
			contextText = a.library.BooksContext(ctx, s, a.composer, books)
		}

		w := cmd.OutOrStdout()
		if !stream {
			answer := a.assistant.Ask(ctx, question, contextText)
			return render(w, map[string]string{"question": question, "answer": answer}, func(w io.Writer) {
				fmt.Fprintln(w, answer)
			})
		}
		return printStream(ctx, w, a.assistant.AskStream(ctx, question, contextText))
	},
}

func init() {
	askCmd.Flags().StringSlice("book", nil, "book id to use as context (repeatable, at most 10)")
	askCmd.Flags().Bool("stream", false, "print the answer as it is generated")
}

// printStream writes deltas as they arrive. An error frame ends the answer
// with an error.
func printStream(ctx context.Context, w io.Writer, s assistant.Stream) error {
	defer s.Close()
	for {
		f, err := s.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			fmt.Fprintln(w)
			return err
		}
		if !f.Terminal() {
			fmt.Fprint(w, f.Text)
			continue
		}
		fmt.Fprintln(w)
		if f.Kind == assistant.FrameError {
			return &assistant.StreamError{Message: f.Text}
		}
		return nil
	}
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models served by the assistant endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		models, err := a.llm.ListModels(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing models: %w", err)
		}
		return render(cmd.OutOrStdout(), models, func(w io.Writer) {
			for _, m := range models {
				line := m.ID
				if m.ID == a.cfg.Assistant.Model {
					line = colorize(successStyle, line+" (configured)")
				}
				fmt.Fprintln(w, line)
			}
		})
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		infos := config.ShowAll(cfg)
		return render(cmd.OutOrStdout(), infos, func(w io.Writer) {
			for _, info := range infos {
				fmt.Fprintf(w, "%-28s %s  %s\n", info.Key, info.Value, colorize(dimStyle, info.EnvVar))
			}
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a non-secret key in the config file",
	Long: fmt.Sprintf(`Set a key in the config file.

Valid keys: %s

Secrets (API token, WeRead cookie, assistant API key) are read only from the
environment or a .env file.`, strings.Join(config.ValidKeys(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.SetKey(path, args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s in %s", args[0], args[1], path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
}

func formatSeconds(secs int64) string {
	d := time.Duration(secs) * time.Second
	h := int64(d.Hours())
	m := int64(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
