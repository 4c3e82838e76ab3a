package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
	"github.com/zhouzirui/apt-chat/backend/internal/logging"
	"github.com/zhouzirui/apt-chat/backend/internal/service/session"
)

const exportStamp = "20060102_150405"

type options struct {
	dir     string
	verbose bool
	storage config.StorageConfig
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and export APT chat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 锁配置必须与服务进程一致（REDIS_URL / SESSION_LOCK_TIMEOUT）
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.storage = cfg.Storage
			if opts.dir != "" {
				opts.storage.SessionDir = opts.dir
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "session log directory (defaults to LOG_DIR/session_logs)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(newListCmd(opts), newPathCmd(opts), newExportCmd(opts))
	return root
}

// openStore shares the server's locker so the tool never writes around a
// lock held by a running worker.
func openStore(ctx context.Context, opts *options, stderr io.Writer) (*session.Store, func(), error) {
	level := "warning"
	if opts.verbose {
		level = "debug"
	}
	logger := logging.New(stderr, level, false)

	locker, closeLocker, err := session.OpenLocker(ctx, opts.storage)
	if err != nil {
		return nil, nil, err
	}
	store, err := session.NewStore(opts.storage.SessionDir, locker, logger.WithField("component", "sessionctl"))
	if err != nil {
		closeLocker()
		return nil, nil, err
	}
	return store, closeLocker, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active and completed sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(commandContext(cmd), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeStore()
			listing, err := store.ListSessions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(listing.Active) == 0 && len(listing.Completed) == 0 {
				fmt.Fprintln(out, "No sessions yet")
				return nil
			}
			fmt.Fprintf(out, "%-38s %s\n", "ID", "STATUS")
			for _, id := range listing.Active {
				fmt.Fprintf(out, "%-38s %s\n", id, "active")
			}
			for _, id := range listing.Completed {
				fmt.Fprintf(out, "%-38s %s\n", id, "completed")
			}
			return nil
		},
	}
}

func newPathCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "path <session-id>",
		Short: "Print the CSV file of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(commandContext(cmd), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeStore()
			path, ok := store.SessionFilePath(args[0])
			if !ok {
				return fmt.Errorf("session %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newExportCmd(opts *options) *cobra.Command {
	var (
		output string
		sqlite bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every session into one CSV (or SQLite) file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(commandContext(cmd), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeStore()

			if output == "" {
				ext := ".csv"
				if sqlite {
					ext = ".db"
				}
				output = "all_sessions_" + time.Now().Format(exportStamp) + ext
			}

			ctx := commandContext(cmd)
			var count int
			if sqlite {
				count, err = store.ExportSQLite(ctx, output)
			} else {
				count, err = store.ExportAll(ctx, output)
			}
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No session data found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", count, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	cmd.Flags().BoolVar(&sqlite, "sqlite", false, "write a SQLite database instead of CSV")
	return cmd
}
