package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI wraps a Migrator with the formatted output the migrate subcommands
// print.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI builds a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput redirects the CLI's output.
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunUp applies all pending migrations.
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.output, "Applying pending migrations...")

	if err := c.migrator.Up(ctx); err != nil {
		return err
	}

	sum, err := c.migrator.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Schema at version %d.\n", sum.CurrentVersion)
	return nil
}

// RunDown rolls back the most recent migration.
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.output, "Rolling back one migration...")

	if err := c.migrator.Down(ctx); err != nil {
		return err
	}

	sum, err := c.migrator.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Schema at version %d.\n", sum.CurrentVersion)
	return nil
}

// RunDownAll rolls back every migration.
func (c *CLI) RunDownAll(ctx context.Context) error {
	fmt.Fprintln(c.output, "Rolling back all migrations...")

	if err := c.migrator.DownAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.output, "Schema empty.")
	return nil
}

// RunSteps applies n migrations forward, or -n backward.
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n >= 0 {
		fmt.Fprintf(c.output, "Applying %d migration(s)...\n", n)
	} else {
		fmt.Fprintf(c.output, "Rolling back %d migration(s)...\n", -n)
	}

	if err := c.migrator.Steps(ctx, n); err != nil {
		return err
	}

	sum, err := c.migrator.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Schema at version %d.\n", sum.CurrentVersion)
	return nil
}

// RunGoto migrates to an exact version.
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.output, "Migrating to version %d...\n", version)

	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Schema at version %d.\n", version)
	return nil
}

// RunForce overwrites the recorded version.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	fmt.Fprintf(c.output, "Forcing version to %d...\n", version)

	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Version forced to %d.\n", version)
	return nil
}

// RunVersion prints the current schema version.
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}

	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}

	fmt.Fprintf(c.output, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}

// RunStatus prints a table of every migration with its state.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	sum, err := c.migrator.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\nTotal: %d, applied: %d, pending: %d\n",
		sum.Total, sum.Applied, sum.Pending)
	return nil
}

// RunSummary prints the condensed schema state.
func (c *CLI) RunSummary(ctx context.Context) error {
	sum, err := c.migrator.Summary(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.output, "Current version: %d\n", sum.CurrentVersion)
	fmt.Fprintf(c.output, "Dirty:           %v\n", sum.Dirty)
	fmt.Fprintf(c.output, "Total:           %d\n", sum.Total)
	fmt.Fprintf(c.output, "Applied:         %d\n", sum.Applied)
	fmt.Fprintf(c.output, "Pending:         %d\n", sum.Pending)
	return nil
}
