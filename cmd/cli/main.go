// Command zb is a CLI client for a zerobase server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/pkg/client"
)

// ---- profile store ----

type profile struct {
	Server    string `json:"server"`
	ProjectID string `json:"project_id"`
	APIKey    string `json:"api_key"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "zerobase")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "zerobase")
}

func profilePath() string { return filepath.Join(cfgDir(), "profile.json") }

func saveProfile(p profile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(profilePath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func loadProfile() (profile, error) {
	b, err := os.ReadFile(profilePath())
	if err != nil {
		return profile{}, err
	}
	var p profile
	if err := json.Unmarshal(b, &p); err != nil {
		return profile{}, err
	}
	return p, nil
}

// ---- settings ----

type settings struct {
	server  string
	project string
	apiKey  string
	timeout time.Duration
	verbose bool
}

// resolve fills unset values from the environment, then the saved profile.
func (s *settings) resolve() {
	p, _ := loadProfile()
	pick := func(dst *string, env, saved string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
			return
		}
		*dst = saved
	}
	pick(&s.server, "ZEROBASE_URL", p.Server)
	pick(&s.project, "ZEROBASE_PROJECT", p.ProjectID)
	pick(&s.apiKey, "ZEROBASE_API_KEY", p.APIKey)
	if s.server == "" {
		s.server = "http://localhost:5000"
	}
}

func (s *settings) admin() *client.Admin {
	s.resolve()
	return client.NewAdmin(s.server)
}

func (s *settings) client() (*client.Client, error) {
	s.resolve()
	if s.project == "" || s.apiKey == "" {
		return nil, errors.New("project and API key required (zb login, --project/--key or ZEROBASE_PROJECT/ZEROBASE_API_KEY)")
	}
	log := zap.NewNop()
	if s.verbose {
		log, _ = zap.NewDevelopment()
	}
	return client.New(s.server, s.project, s.apiKey, client.WithLogger(log)), nil
}

func (s *settings) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// ---- utils ----

var stdout io.Writer = os.Stdout

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	s := &settings{}
	root := &cobra.Command{
		Use:           "zb",
		Short:         "zerobase command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&s.server, "server", "", "server base URL (env ZEROBASE_URL)")
	pf.StringVar(&s.project, "project", "", "project id (env ZEROBASE_PROJECT)")
	pf.StringVar(&s.apiKey, "key", "", "project API key (env ZEROBASE_API_KEY)")
	pf.DurationVar(&s.timeout, "timeout", 30*time.Second, "request timeout")
	pf.BoolVarP(&s.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(*cobra.Command, []string) {
				fmt.Fprintf(stdout, "zb %s (%s)\n", version, buildDate)
			},
		},
		loginCmd(s),
		projectCmd(s),
		tableCmd(s),
		columnCmd(s),
		docCmd(s),
		watchCmd(s),
	)
	return root
}

// main runs the root command and exits non-zero on error.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
