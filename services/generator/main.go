package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/squaregoldfish/cdi-generator/internal/csr"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/config"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/importer"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/tagtmpl"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("cdigen failed: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "cdigen",
		Short:         "Generate SeaDataNet CDI records from PANGAEA datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCSRCmd(), newImportersCmd(), newValidateTemplateCmd())
	return root.ExecuteContext(ctx)
}

func newCSRCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "csr PLATFORM DATE",
		Short: "Look up the cruise summary report for a platform on a date (YYYYMMDD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = config.CSRURL()
			}
			if url == "" {
				return fmt.Errorf("--url or CDI_CSR_URL is required")
			}
			date, err := time.Parse("20060102", args[1])
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", args[1], err)
			}

			client := &http.Client{Timeout: 60 * time.Second}
			table, err := csr.Fetch(cmd.Context(), client, url)
			if err != nil {
				return err
			}
			code, ok := table.Query(args[0], date)
			if !ok {
				return fmt.Errorf("no CSR for %s on %s", args[0], args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "CSR reference file URL (default: CDI_CSR_URL)")
	return cmd
}

func newImportersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "importers",
		Short: "List the available importers and their ID formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := importer.NewRegistry()
			for _, name := range registry.Names() {
				format, _ := registry.IDFormat(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, format)
			}
			return nil
		},
	}
}

func newValidateTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-template FILE",
		Short: "Check a NEMO model template and list its tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tags, err := tagtmpl.Tags(string(data))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			for _, tag := range tags {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}
}
