// Command epubmaker packages HTML and Markdown documents into an EPUB tree.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/epubmaker/internal/config"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "epubmaker",
		Short:        "Package HTML documents as an EPUB",
		Long:         "epubmaker collects documents and everything they reference, builds the package manifest, spine and table of contents, and writes an EPUB 3 tree.",
		SilenceUsage: true,
	}

	// Global flags.
	flags := rootCmd.PersistentFlags()
	flags.StringP("output", "o", ".", "Output root directory")
	flags.StringP("name", "n", "", "Book name, used for package and nav file names")
	flags.String("source-root", ".", "Directory document paths are relative to")
	flags.StringArray("toc", nil, "Table of contents level as level=selector (repeatable)")
	flags.Bool("scripted", false, "Mark documents as scripted")
	flags.String("mathjax", "", "MathJax entry script to reference from every document")
	flags.String("css", "", "Extra stylesheet to link from every document")
	flags.Bool("lenient", false, "Drop resources with unknown media types instead of failing")
	flags.String("title", "", "Book title (defaults to the name)")
	flags.String("language", "en", "Book language")
	flags.String("identifier", "", "Unique identifier (defaults to a uuid derived from the name)")
	flags.String("creator", "", "Book creator")
	flags.Int("workers", 4, "Documents loaded in parallel")
	flags.Bool("zip", false, "Also write <output>/<name>.epub")
	flags.Bool("log-json", false, "Log as JSON")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	// Bind flags to viper.
	for _, name := range []string{
		"output", "name", "source-root", "toc", "scripted", "mathjax", "css",
		"lenient", "title", "language", "identifier", "creator", "workers",
		"zip", "log-json", "verbose",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}

	// Env vars: EPUBMAKER_NAME, EPUBMAKER_SOURCE_ROOT, etc.
	viper.SetEnvPrefix("EPUBMAKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Config file.
	viper.SetConfigName(".epubmaker")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.ReadInConfig() // Ignore error; config file is optional.

	// Add commands.
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newVersionCmd creates the "version" command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print epubmaker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("epubmaker %s\n", version)
		},
	}
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if viper.GetBool("verbose") {
		opts.Level = slog.LevelDebug
	}
	if viper.GetBool("log-json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfig reads the layered configuration and validates it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
