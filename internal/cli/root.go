// Package cli implements the nestdoc command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacentio/nestdoc/store"
)

// Version is set via ldflags at build time
var Version = "dev"

// DefaultNamespace prefixes the configuration keys when --namespace is not given.
const DefaultNamespace = "NESTDOC"

// app carries the global flags and the client options shared by subcommands.
type app struct {
	namespace string
	verbose   bool
	logJSON   bool

	opts []store.Option
}

// NewRootCmd creates the root command for the 'nestdoc' CLI.
// opts are passed to every store.New call.
func NewRootCmd(opts ...store.Option) *cobra.Command {
	a := &app{opts: opts}

	rootCmd := &cobra.Command{
		Use:     "nestdoc",
		Short:   "Read and write documents of a configured collection",
		Version: Version,
		Long: `Read and write documents of a configured collection.

The collection, its parent path and the backend connection are taken from
environment variables prefixed with the namespace (default NESTDOC):

  NESTDOC_PROJECT_ID       backend project (DynamoDB: table name)
  NESTDOC_CREDENTIALS      credential JSON
  NESTDOC_COLLECTION       target collection
  NESTDOC_COLLECTION_PATH  parent path, e.g. orgs/o1/teams/t1
  NESTDOC_BACKEND          firestore, dynamodb or memory

Commands:
  get <ID>...              Print documents as JSON
  put [ID] [flags]         Create or merge a document
  delete <ID>...           Remove documents`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.namespace, "namespace", "n", DefaultNamespace, "Configuration key prefix")
	rootCmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(
		newGetCmd(a),
		newPutCmd(a),
		newDeleteCmd(a),
	)

	return rootCmd
}

// Execute runs the CLI against the process environment.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logger builds the logger selected by the global flags, writing to w.
func (a *app) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	if a.logJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// client opens a store.Client for the command's namespace.
func (a *app) client(cmd *cobra.Command) (*store.Client, error) {
	opts := append([]store.Option{store.WithLogger(a.logger(cmd.ErrOrStderr()))}, a.opts...)
	return store.New(cmd.Context(), a.namespace, opts...)
}
