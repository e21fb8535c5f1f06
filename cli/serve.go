package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/saisasanky/aish/server"
)

func (a *App) serveCommand() *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer generation requests from shell integrations on a Unix socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if socket == "" {
				socket = server.ResolveSocketPath()
			}

			be, done, err := a.connect()
			if err != nil {
				return err
			}
			defer done()

			srv, err := server.New(socket, be.Generator, be.Catalog, a.cfg)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", socket, err)
			}
			defer srv.Close()

			stop := context.AfterFunc(cmd.Context(), func() {
				slog.Info("shutting down")
				srv.Close()
			})
			defer stop()

			slog.Info("listening", "socket", socket)
			fmt.Fprintln(a.Stdout, "Listening on", socket)
			return srv.Serve()
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "socket path (default $AISH_SOCKET, then $XDG_RUNTIME_DIR/aish.sock)")
	return cmd
}
