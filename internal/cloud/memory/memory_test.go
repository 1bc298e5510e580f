package memory

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/internal/cloud"
	"github.com/schedulegen/stackwire-go/resources/lambda"
)

func zipOf(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("// " + name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNamespace_BucketNamesAreGlobal(t *testing.T) {
	ctx := context.Background()
	ns := NewNamespace()
	first := NewAccount(ns, WithAccountID("111111111111"))
	second := NewAccount(ns, WithAccountID("222222222222"))

	_, err := first.CreateBucket(ctx, cloud.BucketSpec{Name: "shared-name"})
	require.NoError(t, err)

	_, err = second.CreateBucket(ctx, cloud.BucketSpec{Name: "shared-name"})
	assert.ErrorIs(t, err, cloud.ErrBucketAlreadyExists)

	require.NoError(t, first.DeleteBucket(ctx, "shared-name"))
	_, err = second.CreateBucket(ctx, cloud.BucketSpec{Name: "shared-name"})
	assert.NoError(t, err)
}

func TestBuckets_VersionedRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewAccount(nil)
	info, err := a.CreateBucket(ctx, cloud.BucketSpec{Name: "versions", Versioned: true})
	require.NoError(t, err)
	assert.True(t, info.Versioned)
	assert.Equal(t, "arn:aws:s3:::versions", info.Arn)

	v1, err := a.PutObject(ctx, "versions", "k", []byte("v1"))
	require.NoError(t, err)
	v2, err := a.PutObject(ctx, "versions", "k", []byte("v2"))
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
	assert.NotEqual(t, "null", v1)

	latest, err := a.GetObject(ctx, "versions", "k", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(latest))

	old, err := a.GetObject(ctx, "versions", "k", v1)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(old))

	assert.Equal(t, []string{v1, v2}, a.ObjectVersions("versions", "k"))

	_, err = a.GetObject(ctx, "versions", "k", "missing")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
	_, err = a.GetObject(ctx, "versions", "other", "")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestBuckets_UnversionedOverwrites(t *testing.T) {
	ctx := context.Background()
	a := NewAccount(nil)
	_, err := a.CreateBucket(ctx, cloud.BucketSpec{Name: "plain"})
	require.NoError(t, err)

	id, err := a.PutObject(ctx, "plain", "k", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, "null", id)
	_, err = a.PutObject(ctx, "plain", "k", []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, []string{"null"}, a.ObjectVersions("plain", "k"))
	data, err := a.GetObject(ctx, "plain", "k", "null")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestBuckets_SuspendKeepsVersions(t *testing.T) {
	ctx := context.Background()
	a := NewAccount(nil)
	_, err := a.CreateBucket(ctx, cloud.BucketSpec{Name: "suspend", Versioned: true})
	require.NoError(t, err)
	v1, err := a.PutObject(ctx, "suspend", "k", []byte("kept"))
	require.NoError(t, err)

	info, err := a.UpdateBucket(ctx, cloud.BucketSpec{Name: "suspend"})
	require.NoError(t, err)
	assert.False(t, info.Versioned)

	id, err := a.PutObject(ctx, "suspend", "k", []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, "null", id)

	old, err := a.GetObject(ctx, "suspend", "k", v1)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(old))
	assert.Equal(t, []string{v1, "null"}, a.ObjectVersions("suspend", "k"))
}

func TestBuckets_DeleteRequiresEmpty(t *testing.T) {
	ctx := context.Background()
	a := NewAccount(nil)
	_, err := a.CreateBucket(ctx, cloud.BucketSpec{Name: "full"})
	require.NoError(t, err)
	_, err = a.PutObject(ctx, "full", "k", []byte("x"))
	require.NoError(t, err)

	assert.ErrorIs(t, a.DeleteBucket(ctx, "full"), cloud.ErrBucketNotEmpty)
	require.NoError(t, a.DeleteObjects("full"))
	require.NoError(t, a.DeleteBucket(ctx, "full"))

	_, ok := a.Bucket("full")
	assert.False(t, ok)
	assert.ErrorIs(t, a.DeleteBucket(ctx, "full"), cloud.ErrNotFound)
}

func TestResolveEntrypoint(t *testing.T) {
	tests := []struct {
		name    string
		runtime lambda.Runtime
		handler string
		files   []string
		want    string
		wantErr error
	}{
		{"java class", lambda.RuntimeJava11, "com.example.Handler::handleRequest",
			[]string{"com/example/Handler.class"}, "com/example/Handler.class", nil},
		{"java without method", lambda.RuntimeJava21, "Handler",
			[]string{"Handler.class"}, "Handler.class", nil},
		{"java missing class", lambda.RuntimeJava11, "com.example.Other::handle",
			[]string{"com/example/Handler.class"}, "", cloud.ErrEntrypointNotFound},
		{"java malformed", lambda.RuntimeJava11, "insert entrypoint here",
			[]string{"com/example/Handler.class"}, "", cloud.ErrEntrypointNotFound},
		{"python module", lambda.RuntimePython312, "app.handler",
			[]string{"app.py"}, "app.py", nil},
		{"python package", lambda.RuntimePython312, "pkg/mod.handler",
			[]string{"pkg/mod.py"}, "pkg/mod.py", nil},
		{"node mjs", lambda.RuntimeNodejs20, "index.handler",
			[]string{"index.mjs"}, "index.mjs", nil},
		{"provided bootstrap", lambda.RuntimeProvidedAL23, "anything",
			[]string{"bootstrap"}, "bootstrap", nil},
		{"runtime mismatch", lambda.RuntimeJava11, "index.handler",
			[]string{"index.js"}, "", cloud.ErrRuntimeMismatch},
		{"empty artifact", lambda.RuntimeNodejs20, "index.handler",
			nil, "", cloud.ErrEntrypointNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEntrypoint(tt.runtime, tt.handler, tt.files)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func createFunction(t *testing.T, a *Account, handler string, files ...string) {
	t.Helper()
	_, err := a.CreateFunction(context.Background(), cloud.FunctionSpec{
		Name:    "fn",
		Handler: handler,
		Runtime: lambda.RuntimeJava11,
		Code:    zipOf(t, files...),
	})
	require.NoError(t, err)
}

func TestInvoke_InvalidEntrypointFailsAtInvocation(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "insert entrypoint here", "pkg/Handler.class")

	_, ok := a.Function("fn")
	require.True(t, ok)

	_, err := a.Invoke(context.Background(), "fn", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, cloud.ErrInvocationFailed)
	assert.ErrorIs(t, err, cloud.ErrEntrypointNotFound)

	var invErr *cloud.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "fn", invErr.Function)
}

func TestInvoke_NoExecutor(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "pkg.Handler::handle", "pkg/Handler.class")

	_, err := a.Invoke(context.Background(), "fn", nil)
	assert.ErrorIs(t, err, ErrNoExecutor)
	assert.ErrorIs(t, err, cloud.ErrInvocationFailed)
}

func TestInvoke_RegisteredHandlerByArn(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "pkg.Handler::handle", "pkg/Handler.class")
	a.RegisterHandler("pkg.Handler::handle", func(_ context.Context, payload []byte) ([]byte, error) {
		return append([]byte("echo:"), payload...), nil
	})

	info, _ := a.Function("fn")
	assert.Equal(t, "arn:aws:lambda:us-east-1:123456789012:function:fn", info.Arn)

	out, err := a.Invoke(context.Background(), info.Arn, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(out))

	_, err = a.Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestInvoke_QualifiedArn(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "pkg.Handler::handle", "pkg/Handler.class")
	a.RegisterHandler("pkg.Handler::handle", func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})

	for _, target := range []string{
		"arn:aws:lambda:us-east-1:123456789012:function:fn:1",
		"arn:aws:lambda:us-east-1:123456789012:function:fn:live",
		"arn:aws:lambda:us-east-1:123456789012:function:fn",
	} {
		out, err := a.Invoke(context.Background(), target, []byte("hi"))
		require.NoError(t, err, target)
		assert.Equal(t, "hi", string(out))
	}

	_, err := a.Invoke(context.Background(), "arn:aws:lambda:us-east-1:123456789012:function:other:1", nil)
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestFunctionName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"fn", "fn"},
		{"arn:aws:lambda:us-east-1:123456789012:function:fn", "fn"},
		{"arn:aws:lambda:us-east-1:123456789012:function:fn:1", "fn"},
		{"arn:aws-cn:lambda:cn-north-1:123456789012:function:fn:$LATEST", "fn"},
		{"arn:aws:s3:::bucket", "arn:aws:s3:::bucket"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, functionName(tt.in), tt.in)
	}
}

func TestFunctionCode(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "pkg.Handler::handle", "pkg/Handler.class")

	code, err := a.FunctionCode(context.Background(), "fn")
	require.NoError(t, err)
	files, err := asset.Inspect(code)
	require.NoError(t, err)
	assert.Contains(t, files, "pkg/Handler.class")

	_, err = a.FunctionCode(context.Background(), "missing")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestInvoke_BrokenArchive(t *testing.T) {
	a := NewAccount(nil)
	_, err := a.CreateFunction(context.Background(), cloud.FunctionSpec{
		Name:    "fn",
		Handler: "pkg.Handler::handle",
		Runtime: lambda.RuntimeJava11,
		Code:    []byte("not a zip"),
	})
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), "fn", nil)
	assert.ErrorIs(t, err, cloud.ErrInvocationFailed)
}

func serve(t *testing.T, a *Account, id, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	h, ok := a.Gateway(id)
	require.True(t, ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader("")))
	return rec
}

func TestGateway_InvalidEntrypointIs502(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "insert entrypoint here", "pkg/Handler.class")

	gw, err := a.CreateGateway(context.Background(), cloud.GatewaySpec{Name: "api", StageName: "prod", FunctionName: "fn"})
	require.NoError(t, err)
	assert.Equal(t, "https://"+gw.ID+".execute-api.us-east-1.amazonaws.com/prod/", gw.URL)

	rec := serve(t, a, gw.ID, http.MethodGet, "/prod/anything/at/all")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())
}

func TestGateway_ProxiesEveryPath(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "pkg.Handler::handle", "pkg/Handler.class")

	var seen []events.APIGatewayProxyRequest
	a.RegisterHandler("pkg.Handler::handle", ProxyHandler(func(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		seen = append(seen, req)
		body, _ := json.Marshal(map[string]string{"path": req.Path})
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       string(body),
		}, nil
	}))

	gw, err := a.CreateGateway(context.Background(), cloud.GatewaySpec{Name: "api", StageName: "prod", FunctionName: "fn"})
	require.NoError(t, err)

	rec := serve(t, a, gw.ID, http.MethodPost, "/prod/schedules/42?term=fall")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"/schedules/42"}`, rec.Body.String())

	rec = serve(t, a, gw.ID, http.MethodGet, "/prod/")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, seen, 2)
	assert.Equal(t, "/{proxy+}", seen[0].Resource)
	assert.Equal(t, "schedules/42", seen[0].PathParameters["proxy"])
	assert.Equal(t, "fall", seen[0].QueryStringParameters["term"])
	assert.Equal(t, http.MethodPost, seen[0].HTTPMethod)
	assert.Equal(t, "prod", seen[0].RequestContext.Stage)
	assert.Equal(t, "/", seen[1].Resource)

	rec = serve(t, a, gw.ID, http.MethodGet, "/dev/x")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAccount_ServeHTTPRoutesByHost(t *testing.T) {
	a := NewAccount(nil)
	createFunction(t, a, "pkg.Handler::handle", "pkg/Handler.class")
	a.RegisterHandler("pkg.Handler::handle", ProxyHandler(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusTeapot}, nil
	}))
	gw, err := a.CreateGateway(context.Background(), cloud.GatewaySpec{Name: "api", StageName: "prod", FunctionName: "fn"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, gw.URL+"x", nil)
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "https://unknown.execute-api.us-east-1.amazonaws.com/prod/", nil)
	rec = httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateway_RequiresFunction(t *testing.T) {
	a := NewAccount(nil)
	_, err := a.CreateGateway(context.Background(), cloud.GatewaySpec{Name: "api", StageName: "prod", FunctionName: "nope"})
	assert.ErrorIs(t, err, cloud.ErrNotFound)

	assert.ErrorIs(t, a.DeleteGateway(context.Background(), "nope"), cloud.ErrNotFound)
}

func TestProvider(t *testing.T) {
	p := NewAccount(nil).Provider()
	assert.Equal(t, "memory", p.Name)
	assert.NoError(t, p.Validate())
}
