package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schedulegen/stackwire-go/internal/cloud/memory"
	"github.com/schedulegen/stackwire-go/internal/config"
	"github.com/schedulegen/stackwire-go/internal/deploy"
	memstate "github.com/schedulegen/stackwire-go/internal/state/memory"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
)

func newInvokeCmd(e *env) *cobra.Command {
	var (
		method  string
		data    string
		headers []string
		apiID   string
	)

	cmd := &cobra.Command{
		Use:   "invoke [path]",
		Short: "Send a request through the stack's gateway",
		Long: `Invoke deploys the stack into a simulated account and sends one HTTP request
through its gateway, printing the status and body the caller would see.

Requires the memory backend. A function whose handler does not resolve in its
code artifact deploys fine and fails here with 502.

Examples:
    stackwire invoke
    stackwire invoke /schedules -X POST -d '{"term":"fall"}'
    stackwire invoke /health -H 'Accept: application/json'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.Backend.Name != config.BackendMemory {
				return fmt.Errorf("invoke requires the %s backend, got %s", config.BackendMemory, e.cfg.Backend.Name)
			}
			path := "/"
			if len(args) == 1 {
				path = "/" + strings.TrimPrefix(args[0], "/")
			}

			stack, err := e.declare()
			if err != nil {
				return err
			}

			var api *apigateway.LambdaRestApi
			for _, r := range stack.Resources() {
				if a, ok := r.(*apigateway.LambdaRestApi); ok && (apiID == "" || a.ID() == apiID) {
					api = a
					break
				}
			}
			if api == nil {
				return fmt.Errorf("stack %s declares no gateway %s", stack.ID(), apiID)
			}

			account := memory.NewAccount(nil)
			d, err := deploy.New(deploy.Options{Provider: account.Provider(), Store: memstate.New(), Logger: e.log})
			if err != nil {
				return err
			}
			res, err := d.Deploy(cmd.Context(), stack)
			if err != nil {
				return err
			}

			url := strings.TrimSuffix(res.Record.Resources[api.ID()].Outputs["URL"], "/") + path
			req := httptest.NewRequest(method, url, strings.NewReader(data))
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("header %q: want 'Name: value'", h)
				}
				req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
			}
			rec := httptest.NewRecorder()
			account.ServeHTTP(rec, req)

			if rec.Code >= http.StatusInternalServerError {
				if _, ierr := d.Invoke(cmd.Context(), stack.ID(), api.Handler().ID(), []byte(`{}`)); ierr != nil {
					e.log.Warn().Err(ierr).Str("function", api.Handler().ID()).Msg("function failed")
				}
			}

			out := cmd.OutOrStdout()
			status := fmt.Sprintf("HTTP %d %s", rec.Code, http.StatusText(rec.Code))
			if rec.Code >= http.StatusBadRequest {
				status = deleteStyle.Render(status)
			} else {
				status = createStyle.Render(status)
			}
			fmt.Fprintln(out, status)
			fmt.Fprintln(out, rec.Body.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "request", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header, 'Name: value'")
	cmd.Flags().StringVar(&apiID, "api", "", "Gateway construct id (default: the first declared)")

	return cmd
}
