package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/weaverun/weave"
	"github.com/weaverun/weave/health"
	"github.com/weaverun/weave/types"
)

// scopedRuntime wires a runtime for a one-shot command and resolves the
// tenant/project scope from flags.
func scopedRuntime(fs *flag.FlagSet, args []string) (*weave.Runtime, types.Scope, context.Context, context.CancelFunc) {
	configPath := fs.String("config", "", "Path to config file")
	tenant := fs.String("tenant", "", "Tenant the server records belong to")
	project := fs.String("project", "", "Project the server records belong to")
	fs.Parse(args)

	if *tenant == "" || *project == "" {
		fmt.Fprintln(os.Stderr, "Both --tenant and --project are required")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rt, err := weave.New(ctx, cfg, weave.WithLogger(logger))
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Failed to wire runtime: %v\n", err)
		os.Exit(1)
	}

	return rt, types.Scope{TenantID: *tenant, ProjectID: *project}, ctx, stop
}

// runCheck probes one capability server, or every server in scope, and
// persists the outcomes.
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	rt, scope, ctx, stop := scopedRuntime(fs, args)
	defer stop()
	defer rt.Close()

	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: weave check [options] [server-id]")
		os.Exit(1)
	}

	var outcomes []health.Outcome
	if fs.NArg() == 1 {
		srv, err := rt.Records().GetCapabilityServer(ctx, scope, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load server: %v\n", err)
			os.Exit(1)
		}
		outcomes = []health.Outcome{rt.Health().CheckHealth(ctx, srv)}
	} else {
		servers, err := rt.Records().ListCapabilityServers(ctx, scope)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list servers: %v\n", err)
			os.Exit(1)
		}
		if len(servers) == 0 {
			fmt.Println("No capability servers in scope.")
			return
		}
		outcomes = rt.Health().CheckAllHealth(ctx, servers)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tSTATUS\tDURATION\tDETAIL")
	failed := false
	for _, o := range outcomes {
		if !o.Healthy() {
			failed = true
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ServerID, o.Status, o.Duration.Round(time.Millisecond), o.LastError)
	}
	w.Flush()

	if failed {
		os.Exit(1)
	}
}

// runDiscover refreshes one server's tool catalog and prints it.
func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	rt, scope, ctx, stop := scopedRuntime(fs, args)
	defer stop()
	defer rt.Close()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: weave discover [options] <server-id>")
		os.Exit(1)
	}

	srv, err := rt.Records().GetCapabilityServer(ctx, scope, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load server: %v\n", err)
		os.Exit(1)
	}

	outcome := rt.Health().Discover(ctx, srv)
	if !outcome.Healthy() {
		fmt.Fprintf(os.Stderr, "Discovery failed: %s (%s)\n", outcome.Status, outcome.LastError)
		os.Exit(1)
	}

	fmt.Printf("Server %s: %s, %d tool(s)\n", outcome.ServerID, outcome.Status, len(outcome.Tools))
	if len(outcome.Tools) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, tool := range outcome.Tools {
		fmt.Fprintf(w, "%s\t%s\n", tool.Name, tool.Description)
	}
	w.Flush()
}
