// Command leanstore queries the objects of a store application from the
// command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/leanstore/leanstore.go"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/logger"
)

const defaultServerURL = "http://localhost:3000"

type cliParams struct {
	server       string
	appID        string
	appKey       string
	masterKey    string
	useMasterKey bool
	verbose      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var params cliParams
	root := &cobra.Command{
		Use:           "leanstore",
		Short:         "Query the objects of a store application",
		SilenceUsage: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&params.server, "server", leanstore.GetEnvOrDefault("LEANSTORE_SERVER_URL", defaultServerURL), "store endpoint")
	f.StringVar(&params.appID, "app-id", leanstore.GetEnvOrDefault("LEANSTORE_APP_ID", ""), "application id")
	f.StringVar(&params.appKey, "app-key", leanstore.GetEnvOrDefault("LEANSTORE_APP_KEY", ""), "application key")
	f.StringVar(&params.masterKey, "master-key", leanstore.GetEnvOrDefault("LEANSTORE_MASTER_KEY", ""), "master key")
	f.BoolVar(&params.useMasterKey, "use-master-key", false, "send every request with the master key")
	f.BoolVarP(&params.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		newDateCmd(&params),
		newGetCmd(&params),
		newFindCmd(&params),
		newCountCmd(&params),
	)
	return root
}

// connect opens a client for the store named by the flags.
func (p *cliParams) connect(cmd *cobra.Command) (*leanstore.Client, error) {
	var opts []leanstore.Option
	var log logger.Logger = logger.Nop()
	if p.verbose {
		ld, err := logger.New().FromBuffer(cmd.ErrOrStderr()).WithLevel(zerolog.DebugLevel).Make()
		if err != nil {
			return nil, err
		}
		log = ld
		opts = append(opts, leanstore.WithLogger(ld))
	}
	if p.useMasterKey {
		opts = append(opts, leanstore.WithMasterKey())
	}
	return leanstore.FromEndpointURLString(cmd.Context(), p.server, func(cfg *connection.Config) {
		cfg.WithApp(p.appID, p.appKey).WithMasterKey(p.masterKey).WithLogger(log)
	}, opts...)
}
