package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/epubmaker/internal/pipeline"
)

// newBuildCmd creates the "build" command.
func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build [sources...]",
		Short: "Package documents into the output tree",
		Long:  "Build packages the given files and directories, in order, into an EPUB tree under the output root. Without arguments the whole source root is used.",
		RunE:  runBuild,
	}
}

type buildSummary struct {
	Name       string   `json:"name"`
	Package    string   `json:"package"`
	Documents  int      `json:"documents"`
	Resources  int      `json:"resources"`
	TOCEntries int      `json:"toc_entries"`
	Dropped    []string `json:"dropped,omitempty"`
	Skipped    []string `json:"skipped,omitempty"`
	Archive    string   `json:"archive,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	builder, err := pipeline.NewBuilder(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	build := pipeline.NewBuild()
	res := pipeline.NewWorker(builder, cfg.SourceRoot, cfg.OutputRoot, args, log).Process(ctx, build)
	if res == nil {
		snap := build.Snapshot()
		for _, e := range snap.Progress.Errors {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return errors.New("build failed")
	}

	out, err := json.MarshalIndent(buildSummary{
		Name:       res.Name,
		Package:    res.PackagePath,
		Documents:  len(res.Documents),
		Resources:  res.Resources,
		TOCEntries: res.Outline.Len(),
		Dropped:    res.Dropped,
		Skipped:    res.Skipped,
		Archive:    res.Archive,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
