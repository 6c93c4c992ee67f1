package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/astrosite"
	"github.com/eringen/astrosite/storage"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		if err := runServe(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "hash-password":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: astrosite hash-password <password>")
			os.Exit(1)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
	case "version":
		fmt.Printf("astrosite %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`astrosite - astrology and numerology content server

Usage:
  astrosite [serve] [--config file] [--addr :3000] [--root dir]
  astrosite hash-password <password>
  astrosite version

Every setting can also come from the environment, e.g. ADMIN_PASSWORD,
SESSION_SECRET, BLOB_READ_WRITE_TOKEN or DATABASE_URL.`)
}

func runServe(args []string) error {
	cfg, staticDir, err := loadConfig(args)
	if err != nil {
		return err
	}

	a := astrosite.New(cfg, astrosite.WithStaticDir(staticDir))
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- a.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

// loadConfig merges defaults, an optional config file, the environment and
// command line flags, in increasing order of precedence.
func loadConfig(args []string) (astrosite.SiteConfig, string, error) {
	fs := pflag.NewFlagSet("astrosite", pflag.ContinueOnError)
	configFile := fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("addr", "", "listen address")
	fs.String("root", "", "directory holding data/news.json")
	fs.String("public", "", "static and upload directory")
	if err := fs.Parse(args); err != nil {
		return astrosite.SiteConfig{}, "", err
	}

	v := viper.New()
	v.SetDefault("ADDR", ":3000")
	v.SetDefault("SITE_NAME", "Astrosite")
	v.SetDefault("SITE_URL", "http://localhost:3000")
	v.SetDefault("SITE_DESCRIPTION", "Astrology, numerology and sky news")
	v.SetDefault("DATA_DIR", ".")
	v.SetDefault("PUBLIC_DIR", "public")
	v.SetDefault("BLOB_API_URL", storage.DefaultBlobAPIURL)
	v.SetDefault("MIRROR_PATH", "data/mirror.db")
	v.SetDefault("CONTENT_TTL", "0s")
	v.SetDefault("UPLOAD_MAX_IMAGE_WIDTH", 1600)
	v.SetDefault("WRITE_RATE_LIMIT", 60)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.AutomaticEnv()

	if err := v.BindPFlag("ADDR", fs.Lookup("addr")); err != nil {
		return astrosite.SiteConfig{}, "", err
	}
	if err := v.BindPFlag("DATA_DIR", fs.Lookup("root")); err != nil {
		return astrosite.SiteConfig{}, "", err
	}
	if err := v.BindPFlag("PUBLIC_DIR", fs.Lookup("public")); err != nil {
		return astrosite.SiteConfig{}, "", err
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return astrosite.SiteConfig{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	ttl, err := time.ParseDuration(v.GetString("CONTENT_TTL"))
	if err != nil {
		return astrosite.SiteConfig{}, "", fmt.Errorf("CONTENT_TTL: %w", err)
	}

	cfg := astrosite.SiteConfig{
		Name:        v.GetString("SITE_NAME"),
		URL:         v.GetString("SITE_URL"),
		Description: v.GetString("SITE_DESCRIPTION"),
		Addr:        v.GetString("ADDR"),
		Root:        v.GetString("DATA_DIR"),
		Storage: storage.Config{
			BlobToken:   v.GetString("BLOB_READ_WRITE_TOKEN"),
			BlobAPIURL:  v.GetString("BLOB_API_URL"),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		AdminPassword:     v.GetString("ADMIN_PASSWORD"),
		AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
		SessionSecret:     v.GetString("SESSION_SECRET"),
		CookieSecure:      v.GetBool("COOKIE_SECURE"),
		APIBaseURL:        v.GetString("API_BASE_URL"),
		MirrorPath:        v.GetString("MIRROR_PATH"),
		ContentTTL:        ttl,
		MaxImageWidth:     v.GetInt("UPLOAD_MAX_IMAGE_WIDTH"),
		AllowedOrigins:    splitList(v.GetString("ALLOWED_ORIGINS")),
		WriteRateLimit:    v.GetInt("WRITE_RATE_LIMIT"),
		GenerativeAPIKey:  v.GetString("GENERATIVE_API_KEY"),
	}
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		return cfg, "", errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set")
	}
	if cfg.SessionSecret == "" {
		return cfg, "", errors.New("SESSION_SECRET must be set")
	}
	return cfg, v.GetString("PUBLIC_DIR"), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
