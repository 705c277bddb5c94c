package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/treemirror/treemirror/cmd"
	"github.com/treemirror/treemirror/pkg/buildinfo"
	"github.com/treemirror/treemirror/pkg/flagparse"
	"github.com/treemirror/treemirror/pkg/plog"
)

// run encapsulates the main application logic and returns an error if
// something goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context) error {
	command, flagMap, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	switch command {
	case flagparse.Sync:
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunSync(ctx, flagMap)
	case flagparse.Init:
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunInit(ctx, flagMap)
	case flagparse.Version:
		cmd.RunVersion()
		return nil
	case flagparse.None:
		return nil // Help was printed.
	default:
		return nil
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		plog.Warn("Interrupt received, shutting down")
		cancel()
	}()

	if err := run(ctx); err != nil {
		plog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}
