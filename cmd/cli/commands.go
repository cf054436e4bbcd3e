package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/zerobase/pkg/client"
)

func loginCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Verify --project/--key against the server and save them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := s.admin()
			if s.project == "" || s.apiKey == "" {
				return errors.New("--project and --key are required")
			}
			ctx, cancel := s.ctx(cmd.Context())
			defer cancel()
			ok, err := a.VerifyKey(ctx, s.project, s.apiKey)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("invalid API key for project")
			}
			if err := saveProfile(profile{Server: s.server, ProjectID: s.project, APIKey: s.apiKey}); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "OK: saved %s\n", profilePath())
			return nil
		},
	}
}

func projectCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	var storageMB int64
	var save bool
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Provision a project and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.ctx(cmd.Context())
			defer cancel()
			p, err := s.admin().CreateProject(ctx, args[0], storageMB)
			if err != nil {
				return err
			}
			printJSON(p)
			if save {
				return saveProfile(profile{Server: s.server, ProjectID: p.ProjectID, APIKey: p.APIKey})
			}
			return nil
		},
	}
	create.Flags().Int64Var(&storageMB, "storage-mb", 0, "storage quota in MB (server default when 0)")
	create.Flags().BoolVar(&save, "save", false, "save the new project as the active profile")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.ctx(cmd.Context())
			defer cancel()
			ps, err := s.admin().Projects(ctx)
			if err != nil {
				return err
			}
			printJSON(ps)
			return nil
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

// withClient wraps a RunE body that needs a project client and a request context.
func withClient(s *settings, fn func(cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := s.client()
		if err != nil {
			return err
		}
		return fn(cmd, c, args)
	}
}

func tableCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{Use: "table", Short: "Manage tables"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "list",
			Args: cobra.NoArgs,
			RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, _ []string) error {
				ctx, cancel := s.ctx(cmd.Context())
				defer cancel()
				ts, err := c.Database.Tables(ctx)
				if err != nil {
					return err
				}
				printJSON(ts)
				return nil
			}),
		},
		&cobra.Command{
			Use:  "create <table>",
			Args: cobra.ExactArgs(1),
			RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, args []string) error {
				ctx, cancel := s.ctx(cmd.Context())
				defer cancel()
				if err := c.Database.CreateTable(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "OK: created %s\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:  "drop <table>",
			Args: cobra.ExactArgs(1),
			RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, args []string) error {
				ctx, cancel := s.ctx(cmd.Context())
				defer cancel()
				if err := c.Database.DropTable(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "OK: dropped %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func columnCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{Use: "column", Short: "Manage columns"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <table> <column> <type>",
		Short: "Add a column (types: text, varchar, integer, bigint, boolean, timestamp, jsonb, uuid, numeric, date, ...)",
		Args:  cobra.ExactArgs(3),
		RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, args []string) error {
			ctx, cancel := s.ctx(cmd.Context())
			defer cancel()
			if err := c.Database.AddColumn(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "OK: %s.%s %s\n", args[0], args[1], args[2])
			return nil
		}),
	})
	return cmd
}

func docCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{Use: "doc", Aliases: []string{"document"}, Short: "Read and insert documents"}

	list := &cobra.Command{
		Use:  "list <table>",
		Args: cobra.ExactArgs(1),
		RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, args []string) error {
			ctx, cancel := s.ctx(cmd.Context())
			defer cancel()
			docs, err := c.Database.Documents(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(docs)
			return nil
		}),
	}

	var file string
	insert := &cobra.Command{
		Use:   "insert <table> [field=value ...]",
		Short: "Insert a document from field=value pairs or --file (JSON object, - for stdin)",
		Args:  cobra.MinimumNArgs(1),
		RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, args []string) error {
			doc, err := buildDocument(file, args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := s.ctx(cmd.Context())
			defer cancel()
			row, err := c.Database.Insert(ctx, args[0], doc)
			if err != nil {
				return err
			}
			printJSON(row)
			return nil
		}),
	}
	insert.Flags().StringVarP(&file, "file", "f", "", "JSON document file")

	cmd.AddCommand(list, insert)
	return cmd
}

func watchCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <table> [table ...]",
		Short: "Stream change events until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: withClient(s, func(cmd *cobra.Command, c *client.Client, args []string) error {
			for _, t := range args {
				c.Realtime.Subscribe(t, func(ev client.Event) {
					printJSON(map[string]any{
						"table": ev.Table,
						"event": ev.Event,
						"data":  ev.Data,
						"at":    time.UnixMilli(ev.TS).UTC().Format(time.RFC3339),
					})
				})
			}
			fmt.Fprintf(os.Stderr, "watching %v (Ctrl-C to stop)\n", args)
			err := c.Realtime.Run(cmd.Context())
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		}),
	}
}
