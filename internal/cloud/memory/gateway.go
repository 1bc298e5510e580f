package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

type gateway struct {
	spec   cloud.GatewaySpec
	id     string
	router chi.Router
}

func (g *gateway) info(region string) *cloud.GatewayInfo {
	return &cloud.GatewayInfo{
		ID:    g.id,
		Name:  g.spec.Name,
		Stage: g.spec.StageName,
		URL:   cloud.GatewayURL(g.id, region, g.spec.StageName),
	}
}

// CreateGateway implements cloud.Gateways. The target function must exist;
// its handler is not checked.
func (a *Account) CreateGateway(ctx context.Context, spec cloud.GatewaySpec) (*cloud.GatewayInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.StageName == "" {
		return nil, errors.New("stage name is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.functions[spec.FunctionName]; !ok {
		return nil, fmt.Errorf("gateway %s: function %s: %w", spec.Name, spec.FunctionName, cloud.ErrNotFound)
	}
	g := &gateway{spec: spec, id: strings.ToLower(a.nextID("api"))}
	g.router = a.newRouter(g)
	a.gateways[g.id] = g
	return g.info(a.region), nil
}

// UpdateGateway implements cloud.Gateways.
func (a *Account) UpdateGateway(ctx context.Context, id string, spec cloud.GatewaySpec) (*cloud.GatewayInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.gateways[id]
	if !ok {
		return nil, fmt.Errorf("gateway %s: %w", id, cloud.ErrNotFound)
	}
	if _, ok := a.functions[spec.FunctionName]; !ok {
		return nil, fmt.Errorf("gateway %s: function %s: %w", spec.Name, spec.FunctionName, cloud.ErrNotFound)
	}
	g.spec = spec
	g.router = a.newRouter(g)
	return g.info(a.region), nil
}

// DeleteGateway implements cloud.Gateways.
func (a *Account) DeleteGateway(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.gateways[id]; !ok {
		return fmt.Errorf("gateway %s: %w", id, cloud.ErrNotFound)
	}
	delete(a.gateways, id)
	return nil
}

// Gateway returns the HTTP handler of a gateway. Requests are routed below
// /<stage>/.
func (a *Account) Gateway(id string) (http.Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	g, ok := a.gateways[id]
	if !ok {
		return nil, false
	}
	return g.router, true
}

// ServeHTTP routes a request to the gateway named by the first label of its
// host, e.g. https://<id>.execute-api.<region>.amazonaws.com/<stage>/path.
func (a *Account) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, _, _ := strings.Cut(r.Host, ".")
	h, ok := a.Gateway(strings.ToLower(id))
	if !ok {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}
	h.ServeHTTP(w, r)
}

func (a *Account) newRouter(g *gateway) chi.Router {
	spec := g.spec
	proxy := func(w http.ResponseWriter, r *http.Request) {
		a.proxy(w, r, g.id, spec)
	}

	r := chi.NewRouter()
	r.Route("/"+spec.StageName, func(r chi.Router) {
		r.HandleFunc("/", proxy)
		r.HandleFunc("/*", proxy)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusForbidden, "Missing Authentication Token")
	})
	return r
}

// proxy turns r into a proxy event, invokes the function and writes its
// response. Any invocation failure is a 502.
func (a *Account) proxy(w http.ResponseWriter, r *http.Request, apiID string, spec cloud.GatewaySpec) {
	event, err := proxyRequest(r, apiID, spec.StageName)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out, err := a.Invoke(r.Context(), spec.FunctionName, payload)
	if err != nil {
		writeMessage(w, http.StatusBadGateway, "Internal server error")
		return
	}

	var resp events.APIGatewayProxyResponse
	if err := json.Unmarshal(out, &resp); err != nil || resp.StatusCode == 0 {
		writeMessage(w, http.StatusBadGateway, "Internal server error")
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		if body, err = base64.StdEncoding.DecodeString(resp.Body); err != nil {
			writeMessage(w, http.StatusBadGateway, "Internal server error")
			return
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func proxyRequest(r *http.Request, apiID, stage string) (events.APIGatewayProxyRequest, error) {
	var data []byte
	if r.Body != nil {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			return events.APIGatewayProxyRequest{}, err
		}
	}

	path := strings.TrimPrefix(r.URL.Path, "/"+stage)
	if path == "" {
		path = "/"
	}
	resource := "/"
	var params map[string]string
	if path != "/" {
		resource = "/{proxy+}"
		params = map[string]string{"proxy": strings.TrimPrefix(path, "/")}
	}

	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	query := make(map[string]string)
	multiQuery := make(map[string][]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[len(vs)-1]
		}
		multiQuery[k] = vs
	}

	event := events.APIGatewayProxyRequest{
		Resource:                        resource,
		Path:                            path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               r.Header,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		PathParameters:                  params,
		RequestContext: events.APIGatewayProxyRequestContext{
			APIID:        apiID,
			Stage:        stage,
			HTTPMethod:   r.Method,
			Path:         r.URL.Path,
			ResourcePath: resource,
		},
	}
	if utf8.Valid(data) {
		event.Body = string(data)
	} else {
		event.Body = base64.StdEncoding.EncodeToString(data)
		event.IsBase64Encoded = true
	}
	return event, nil
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
