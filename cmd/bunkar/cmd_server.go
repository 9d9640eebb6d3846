package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/bunkar/internal/kernel"
	"github.com/shashiranjanraj/bunkar/internal/server"
	"github.com/shashiranjanraj/bunkar/pkg/session"
	"github.com/shashiranjanraj/bunkar/pkg/ws"
)

// bunkar serve
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run", "start"},
	Short:   "Start the HTTP and gRPC servers with queue workers and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.Boot(ctx)
		if err != nil {
			return err
		}
		return app.Serve(ctx)
	},
}

// bunkar route:list
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all named routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Controllers are only referenced, never called, so no services
		// are needed to build the table.
		app := &server.App{Hub: ws.NewHub()}
		deps, err := app.RouteDeps()
		if err != nil {
			return err
		}
		r := kernel.NewRouter(deps, kernel.Options{Session: session.DefaultOptions()})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tNAME")
		fmt.Fprintln(w, "------\t----\t----")
		for _, ri := range r.Routes() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
		}
		return w.Flush()
	},
}
