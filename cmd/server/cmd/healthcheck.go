package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckOptions struct {
	url     string
	timeout time.Duration
	retries int
	delay   time.Duration
	format  string
}

// HealthResponse is the subset of the /readyz body the probe reads.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is one probe of a running server.
type HealthCheckResult struct {
	URL       string                 `json:"url"`
	IsHealthy bool                   `json:"healthy"`
	Status    string                 `json:"status,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	opts := &healthcheckOptions{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /readyz endpoint.

Used by container HEALTHCHECK instructions and deploy scripts.
Exits with code 0 if the server is healthy, non-zero otherwise.

Examples:
  server healthcheck
  server healthcheck --url http://eventdesk:8080/readyz --retries 5 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/readyz)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "timeout per attempt")
	cmd.Flags().IntVar(&opts.retries, "retries", 1, "attempts before giving up")
	cmd.Flags().DurationVar(&opts.delay, "retry-delay", 2*time.Second, "wait between attempts")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format (text, json)")
	return cmd
}

func runHealthcheck(ctx context.Context, out io.Writer, opts *healthcheckOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	url := opts.url
	if url == "" {
		url = defaultHealthURL()
	}

	result := performHealthCheckWithRetries(ctx, url, opts.timeout, opts.retries, opts.delay)
	if err := writeHealthResult(out, result, opts.format); err != nil {
		return err
	}
	if !result.IsHealthy {
		return fmt.Errorf("unhealthy: %s", describeFailure(result))
	}
	return nil
}

func defaultHealthURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/readyz", port)
}

// performHealthCheck probes url once. A server is healthy only when it
// answers 200 with status "healthy".
func performHealthCheck(ctx context.Context, url string, timeout time.Duration) HealthCheckResult {
	result := HealthCheckResult{URL: url}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("invalid response (status %d): %v", resp.StatusCode, err)
		return result
	}

	result.Status = body.Status
	result.Checks = body.Checks
	result.IsHealthy = resp.StatusCode == http.StatusOK && body.Status == "healthy"
	return result
}

func performHealthCheckWithRetries(ctx context.Context, url string, timeout time.Duration, attempts int, delay time.Duration) HealthCheckResult {
	if attempts < 1 {
		attempts = 1
	}

	var result HealthCheckResult
	for i := 0; i < attempts; i++ {
		result = performHealthCheck(ctx, url, timeout)
		if result.IsHealthy || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return result
		case <-time.After(delay):
		}
	}
	return result
}

func writeHealthResult(out io.Writer, result HealthCheckResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text", "":
		if result.IsHealthy {
			fmt.Fprintf(out, "healthy (%dms) %s\n", result.LatencyMs, result.URL)
			return nil
		}
		fmt.Fprintf(out, "unhealthy (%dms) %s: %s\n", result.LatencyMs, result.URL, describeFailure(result))
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text or json)", format)
	}
}

func describeFailure(result HealthCheckResult) string {
	if result.Error != "" {
		return result.Error
	}
	var failed []string
	for name, check := range result.Checks {
		if check.Status == "fail" {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return "status " + result.Status
	}
	return fmt.Sprintf("status %s, failing checks: %s", result.Status, strings.Join(failed, ", "))
}
