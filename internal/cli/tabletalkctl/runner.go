package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks a failure after the command line was accepted.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

var errNoCommand = errors.New("a command is required")

// Run executes one command and returns the process exit code: 0 on
// success, 1 when the request fails, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", reqErr.err)
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	client := &apiClient{}

	root := &cobra.Command{
		Use:           "tabletalkctl",
		Short:         "Command-line client for the tabletalk API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			client.baseURL = baseURL
			client.apiKey = strings.TrimSpace(apiKey)
			client.http = defaults.HTTPClient
			if client.http == nil {
				client.http = &http.Client{Timeout: timeout}
			}
		},
		RunE: func(*cobra.Command, []string) error {
			return errNoCommand
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "tabletalk API base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		passthroughCommand(client, stdout, "health", "Check the API is up", http.MethodGet, "/health"),
		passthroughCommand(client, stdout, "ready", "Check the API can reach the warehouse", http.MethodGet, "/ready"),
		passthroughCommand(client, stdout, "tables", "List warehouse tables", http.MethodGet, "/tables"),
		sampleCommand(client, stdout),
		dictionaryCommand(client, stdout),
		askCommand(client, stdout),
		runCommand(client, stdout),
	)
	return root
}

func passthroughCommand(client *apiClient, stdout io.Writer, use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := client.do(cmd.Context(), method, path, nil)
			if err != nil {
				return &requestError{err: err}
			}
			return printJSON(stdout, raw)
		},
	}
}

func sampleCommand(client *apiClient, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sample <table>",
		Short: "Show a diverse sample of a table's rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client.do(cmd.Context(), http.MethodGet, "/sample-data/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return &requestError{err: err}
			}
			return printJSON(stdout, raw)
		},
	}
}

func dictionaryCommand(client *apiClient, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "dictionary <table>",
		Short: "Generate a data dictionary for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client.do(cmd.Context(), http.MethodPost, "/data-dictionary", map[string]any{"table_name": args[0]})
			if err != nil {
				return &requestError{err: err}
			}
			return printJSON(stdout, raw)
		},
	}
}

func runCommand(client *apiClient, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run <sql>",
		Short: "Execute a SELECT statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client.do(cmd.Context(), http.MethodPost, "/run-sql", map[string]any{"sql": args[0]})
			if err != nil {
				return &requestError{err: err}
			}
			return printJSON(stdout, raw)
		},
	}
}

// askCommand chains dictionary, sample and generate-sql the way the UI does,
// and optionally runs the generated statement.
func askCommand(client *apiClient, stdout io.Writer) *cobra.Command {
	var run bool
	cmd := &cobra.Command{
		Use:   "ask <table> <question>",
		Short: "Turn a question into SQL",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			table := args[0]
			question := strings.Join(args[1:], " ")

			var dictionary struct {
				Dictionary json.RawMessage `json:"dictionary"`
			}
			if err := client.decode(ctx, http.MethodPost, "/data-dictionary", map[string]any{"table_name": table}, &dictionary); err != nil {
				return &requestError{err: err}
			}
			var sample json.RawMessage
			if err := client.decode(ctx, http.MethodGet, "/sample-data/"+url.PathEscape(table), nil, &sample); err != nil {
				return &requestError{err: err}
			}

			var generated struct {
				SQL string `json:"sql"`
			}
			if err := client.decode(ctx, http.MethodPost, "/generate-sql", map[string]any{
				"table_name":      table,
				"question":        question,
				"data_dictionary": dictionary.Dictionary,
				"sample_data":     sample,
			}, &generated); err != nil {
				return &requestError{err: err}
			}
			_, _ = fmt.Fprintln(stdout, generated.SQL)
			if !run {
				return nil
			}

			raw, err := client.do(ctx, http.MethodPost, "/run-sql", map[string]any{"sql": generated.SQL})
			if err != nil {
				return &requestError{err: err}
			}
			return printJSON(stdout, raw)
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "execute the generated SQL")
	return cmd
}

func printJSON(w io.Writer, raw []byte) error {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return nil
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(raw), "", "  "); err != nil {
		return "", false
	}
	return out.String(), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
