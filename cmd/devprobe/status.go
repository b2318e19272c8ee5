package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/devprobe/internal/storage"
)

type statusStore interface {
	AllLatest(ctx context.Context) ([]storage.Check, error)
}

// apiClient reads monitoring state from a running devprobe server.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func (c *apiClient) AllLatest(ctx context.Context) ([]storage.Check, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.baseURL, "/")+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Data  []storage.Check `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
	}
	return body.Data, nil
}

func statusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest monitored status from a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := loadConfig(cfgFile, false)
				if err != nil {
					return err
				}
				addr = cfg.Server.Address
			}
			if !strings.Contains(addr, "://") {
				addr = "http://" + addr
			}
			return executeStatus(cmd, &apiClient{baseURL: addr, client: &http.Client{Timeout: 10 * time.Second}})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default server.address from config)")
	return cmd
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	checks, err := db.AllLatest(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(checks) == 0 {
		fmt.Fprintln(out, "No check history. Run 'devprobe serve' with monitoring enabled first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATUS\tLATENCY\tLAST CHECKED\tDETAIL")
	for _, c := range checks {
		latency := "-"
		if c.LatencyMs != nil {
			latency = fmt.Sprintf("%.2fms", *c.LatencyMs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Service,
			c.Status,
			latency,
			c.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			c.Detail,
		)
	}
	w.Flush()
	return nil
}
