package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/nebula-omnivore/pkg/config"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/sources/omnivore"
	jsonpool "github.com/ajitpratap0/nebula-omnivore/pkg/json"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/nebula-omnivore/pkg/connector/destinations/json"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "omnivore",
		Short: "Extract Omnivore point-of-sale data as JSON lines",
		Long: `omnivore walks the Omnivore API from locations down to tickets, items and
modifiers, flattens every HAL record and writes RECORD and STATE messages as
JSON lines to stdout or a file.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "omnivore v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Fprintf(out, "  - %s\n", source)
			}
			fmt.Fprintln(out, "\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Fprintf(out, "  - %s\n", dest)
			}
		},
	})

	root.AddCommand(newDiscoverCommand(), newConfigCommand(), newSyncCommand())
	return root
}

func newDiscoverCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the stream catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := omnivore.NewCatalog()
			if err != nil {
				return err
			}
			doc := map[string]interface{}{"streams": catalog.All()}

			var data []byte
			switch format {
			case "json":
				data, err = jsonpool.MarshalIndent(doc, "", "  ")
				data = append(data, '\n')
			case "yaml":
				data, err = yaml.Marshal(doc)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml)")
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default filled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			cfg := config.Default()
			cfg.APIKey = "${OMNIVORE_API_KEY}"
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&path, "path", "p", "omnivore.yaml", "Configuration file to create")

	cmd.AddCommand(initCmd)
	return cmd
}
