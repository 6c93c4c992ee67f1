// Command newsctl edits the site's news collection from a terminal. It goes
// through the same cache the admin editor uses, so edits made while the
// server is unreachable stay in the local mirror until "newsctl sync".
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/eringen/astrosite/news"
	"github.com/eringen/astrosite/newsclient"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("newsctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.StringP("server", "s", envOr("ASTROSITE_URL", "http://localhost:3000"), "site base URL")
	mirror := fs.StringP("mirror", "m", defaultMirror(), "SQLite file holding the local copy")
	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: newsctl [flags] <command> [arguments]

Commands:
  list              List posts, newest first
  get <slug>        Print one post as JSON
  save <file|->     Create or replace a post from JSON
  delete <id>       Delete a post
  sync              Push the local copy to the server
  upload <file>     Upload a file and print its URL

Flags:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	local, err := newsclient.OpenSQLite(*mirror)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer local.Close()

	c := newsclient.New(*server, local)
	if err := dispatch(ctx, c, fs.Args(), stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, newsclient.ErrSyncFailed) {
			fmt.Fprintln(stderr, "The change is kept locally. Run \"newsctl sync\" to retry.")
		}
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, c *newsclient.Cache, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tTOPIC\tSLUG\tTITLE")
		for _, p := range news.SortNewestFirst(c.Posts(ctx)) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Date, p.Topic, p.Slug, p.Title)
		}
		return w.Flush()
	case "get":
		if len(rest) != 1 {
			return errors.New("usage: newsctl get <slug>")
		}
		p, ok := c.PostBySlug(ctx, rest[0])
		if !ok {
			return fmt.Errorf("no post with slug %q", rest[0])
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "save":
		if len(rest) != 1 {
			return errors.New("usage: newsctl save <file|->")
		}
		p, err := readPost(rest[0], stdin)
		if err != nil {
			return err
		}
		if err := c.SavePost(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved %s\n", p.Slug)
		return nil
	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: newsctl delete <id>")
		}
		if err := c.DeletePost(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", rest[0])
		return nil
	case "sync":
		if err := c.Sync(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "synced")
		return nil
	case "upload":
		if len(rest) != 1 {
			return errors.New("usage: newsctl upload <file>")
		}
		f, err := os.Open(rest[0])
		if err != nil {
			return err
		}
		defer f.Close()
		u, err := c.Upload(ctx, filepath.Base(rest[0]), mime.TypeByExtension(filepath.Ext(rest[0])), f)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, u)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// readPost decodes a post and fills in the id, slug and defaults a new post
// needs.
func readPost(name string, stdin io.Reader) (news.Post, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return news.Post{}, err
		}
		defer f.Close()
		r = f
	}
	var p news.Post
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return news.Post{}, fmt.Errorf("decode post: %w", err)
	}
	if p.Title == "" {
		return news.Post{}, errors.New("post needs a title")
	}
	if p.ID == "" {
		p.ID = news.NewID()
	}
	if p.Slug == "" {
		p.Slug = news.MakeSlug(p.Title, p.ID)
	}
	if p.Topic == "" {
		p.Topic = news.TopicAstrology
	}
	if p.Format == "" {
		p.Format = news.FormatFact
	}
	if !p.Topic.Valid() {
		return news.Post{}, fmt.Errorf("unknown topic %q", p.Topic)
	}
	if !p.Format.Valid() {
		return news.Post{}, fmt.Errorf("unknown format %q", p.Format)
	}
	return p, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultMirror() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "newsctl.db"
	}
	return filepath.Join(dir, "astrosite", "newsctl.db")
}
