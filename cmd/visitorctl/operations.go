package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sitewatch/visitorfn/internal/router"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// routeCmd builds a command that sends one request through the router.
func routeCmd(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			resp := app.Handle(cmd.Context(), router.Request{
				Method:    method,
				Path:      path,
				RequestID: uuid.NewString(),
			})
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}
}

func newCountCmd() *cobra.Command {
	return routeCmd("count", "Print the current visitor count", http.MethodGet, "/counter")
}

func newIncrementCmd() *cobra.Command {
	return routeCmd("increment", "Record one visit and print the new count", http.MethodPost, "/counter")
}

func newRenewalStatusCmd() *cobra.Command {
	return routeCmd("renewal-status", "Print the renewal instance state", http.MethodGet, "/ssl/status")
}

func newHealthCmd() *cobra.Command {
	return routeCmd("health", "Run the combined health check", http.MethodGet, "/health")
}

func newInitCounterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-counter",
		Short: "Create the counter record with a zero count if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), app.InitializeCounter(cmd.Context()))
		},
	}
}

func newAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Print the current count, table status and last update seen by this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), app.CounterAnalytics(cmd.Context()))
		},
	}
}

func newRenewCmd() *cobra.Command {
	var scheduled bool

	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Start the certificate renewal instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			var resp response.Response
			if scheduled {
				resp = app.HandleScheduled(cmd.Context(), uuid.NewString())
			} else {
				resp = app.Handle(cmd.Context(), router.Request{
					Method:    http.MethodPost,
					Path:      "/ssl/renew",
					RequestID: uuid.NewString(),
				})
			}
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "run as the scheduled renewal function would")
	return cmd
}

// printResponse writes the status and decoded body as indented JSON. A 4xx
// or 5xx status is also returned as an error so the exit code reflects it.
func printResponse(w io.Writer, resp response.Response) error {
	var body interface{} = resp.Body
	if decoded, err := response.Decode(resp); err == nil {
		body = decoded
	}

	out, err := json.MarshalIndent(map[string]interface{}{
		"statusCode": resp.StatusCode,
		"body":       body,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render response: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
