// Command bulksend runs one bulk ticket batch from the command line and
// prints the report as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/bulk"
	"github.com/yourorg/bulk-tickets/internal/clock"
	"github.com/yourorg/bulk-tickets/internal/config"
	"github.com/yourorg/bulk-tickets/internal/helpdesk"
	"github.com/yourorg/bulk-tickets/internal/logging"
	"github.com/yourorg/bulk-tickets/internal/storage"
	"github.com/yourorg/bulk-tickets/internal/throttle"
	"github.com/yourorg/bulk-tickets/internal/types"
)

var (
	subjectTemplate string
	bodyTemplate    string
	emailColumn     string
	disposition     string
	customFields    string
	outputURI       string
	pretty          bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bulksend [file]",
		Short: "Create one helpdesk ticket per spreadsheet row",
		Long: `bulksend reads a .csv, .xlsx or .xls file from a local path, file:// or
s3:// URI and creates one ticket per row, rendering the subject and body
templates with that row's values.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVarP(&subjectTemplate, "subject", "s", "", "Subject template, e.g. 'Hello {name}'")
	rootCmd.Flags().StringVarP(&bodyTemplate, "body", "b", "", "Body template")
	rootCmd.Flags().StringVar(&emailColumn, "email-column", "", "Column holding the recipient (default: email)")
	rootCmd.Flags().StringVar(&disposition, "disposition", "", "Value for the inquiry custom field")
	rootCmd.Flags().StringVar(&customFields, "custom-fields", "", "JSON object merged into every ticket's custom fields")
	rootCmd.Flags().StringVarP(&outputURI, "output", "o", "", "Write the report to this path or URI (default: stdout)")
	rootCmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	_ = rootCmd.MarkFlagRequired("subject")
	_ = rootCmd.MarkFlagRequired("body")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	inputURI := args[0]

	cfg := config.FromEnv()
	zl := logging.New(cfg.LogLevel)
	defer zl.Sync()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", bulk.ErrInvalidAPIKey, err)
	}
	zl.Info("helpdesk configuration", zap.String("base_url", cfg.BaseURL), zap.String("api_key", config.Mask(cfg.APIKey)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, inputURI, outputURI)
	if err != nil {
		return err
	}

	content, err := readAll(ctx, store, inputURI)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputURI, err)
	}

	hd := helpdesk.NewClient(helpdesk.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		TicketType: cfg.TicketType,
		Logger:     zl,
	})
	svc := bulk.New(bulk.Config{
		Submitter:          hd,
		Limiter:            throttle.NewGate(cfg.SendDelay, clock.Real()),
		Logger:             zl,
		IgnoreColumns:      cfg.IgnoreColumns,
		DefaultDisposition: cfg.DefaultDisposition,
	})

	report, err := svc.Run(ctx, types.BatchRequest{
		File:            content,
		Filename:        path.Base(inputURI),
		SubjectTemplate: subjectTemplate,
		BodyTemplate:    bodyTemplate,
		EmailColumn:     emailColumn,
		Disposition:     disposition,
		ExtraFieldsJSON: customFields,
	})
	if err != nil {
		return err
	}

	out, err := encode(report)
	if err != nil {
		return err
	}
	if outputURI == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	} else if _, err := store.Put(ctx, outputURI, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	sent, skipped, failed := report.Counts()
	fmt.Fprintf(cmd.ErrOrStderr(), "batch %s: %d rows, %d sent, %d skipped, %d errors\n", report.BatchID, report.Total, sent, skipped, failed)
	if report.Aborted {
		return fmt.Errorf("batch %s stopped early after %d of %d rows", report.BatchID, len(report.Results), report.Total)
	}
	return nil
}

// newStore only builds an S3 client when one of the URIs needs it.
func newStore(ctx context.Context, uris ...string) (*storage.Store, error) {
	for _, u := range uris {
		if strings.HasPrefix(u, "s3://") {
			s3c, err := storage.NewS3(ctx)
			if err != nil {
				return nil, fmt.Errorf("s3 init: %w", err)
			}
			return storage.New(s3c), nil
		}
	}
	return storage.New(nil), nil
}

func readAll(ctx context.Context, store storage.ObjectStore, uri string) ([]byte, error) {
	rc, _, err := store.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func encode(report *types.BatchReport) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(report, "", "  ")
	}
	return json.Marshal(report)
}
