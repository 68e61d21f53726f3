package wessfake

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wess-dev/wess-e2e/internal/client"
)

// addWasm exports add(i32, i32) -> i32.
var addWasm = client.Bytes{
	0, 97, 115, 109, 1, 0, 0, 0, 1, 7, 1, 96, 2, 127, 127, 1, 127, 3, 2, 1, 0,
	7, 7, 1, 3, 97, 100, 100, 0, 0, 10, 9, 1, 7, 0, 32, 0, 32, 1, 106, 11,
}

// syncBuffer lets the test read what handler goroutines wrote.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestServer(t *testing.T, opts Options) (*Server, *client.Client) {
	t.Helper()
	s := New(opts)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, client.New(ts.URL, 0)
}

func tableBody() client.ModuleRequest {
	return client.ModuleRequest{
		Wasm: addWasm,
		Metadata: client.Metadata{
			FunctionName: "add",
			ReturnType:   []string{"i32"},
			Args:         []string{"i32", "i32"},
		},
	}
}

func createID(t *testing.T, c *client.Client, body any) string {
	t.Helper()
	resp, err := c.Create(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.String())
	created, err := client.Decode[client.Created](resp)
	require.NoError(t, err)
	require.NotNil(t, created.ID)
	return *created.ID
}

func TestCreateReturnsUUIDv4(t *testing.T) {
	_, c := newTestServer(t, Options{})

	first := createID(t, c, tableBody())
	second := createID(t, c, tableBody())

	for _, id := range []string{first, second} {
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), parsed.Version())
	}
	assert.NotEqual(t, first, second)
}

func TestCreateLegacyBody(t *testing.T) {
	s, c := newTestServer(t, Options{})

	id := createID(t, c, client.LegacyModule{
		Wasm:       addWasm,
		Func:       "add",
		ReturnType: "i32",
		Args:       json.RawMessage(`["i32","i32"]`),
	})

	m, ok := s.Store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "add", m.Metadata.Func)
	assert.Equal(t, []string{"i32"}, m.Metadata.ReturnType)
	assert.Equal(t, []string{"i32", "i32"}, m.Metadata.Args)
}

func TestCreateRejectsBadBody(t *testing.T) {
	_, c := newTestServer(t, Options{})

	resp, err := c.Create(context.Background(), json.RawMessage(`{"wasm":[0,97]}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = c.Create(context.Background(), json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunAdd(t *testing.T) {
	_, c := newTestServer(t, Options{})
	id := createID(t, c, tableBody())

	resp, err := c.Invoke(context.Background(), id, json.RawMessage(`[2, 3]`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.String())

	result, err := client.Decode[client.RunResult](resp)
	require.NoError(t, err)
	assert.JSONEq(t, `"5"`, string(result.Success))
}

func TestRunErrors(t *testing.T) {
	_, c := newTestServer(t, Options{})
	id := createID(t, c, tableBody())

	tests := []struct {
		name string
		id   string
		args string
		want int
	}{
		{"unknown id", uuid.NewString(), `[1,2]`, http.StatusNotFound},
		{"wrong arity", id, `[1]`, http.StatusBadRequest},
		{"not an array", id, `{"a":1}`, http.StatusBadRequest},
		{"wrong type", id, `["x", 2]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Invoke(context.Background(), tt.id, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode, resp.String())
		})
	}
}

func TestUpdateReadDelete(t *testing.T) {
	_, c := newTestServer(t, Options{})
	ctx := context.Background()
	id := createID(t, c, tableBody())

	resp, err := c.Update(ctx, id, client.LegacyModule{
		Wasm: addWasm, Func: "add", ReturnType: "i32", Args: json.RawMessage(`["i32","i32"]`),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = c.Read(ctx, id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	read, err := client.Decode[client.ReadResult](resp)
	require.NoError(t, err)
	require.NotNil(t, read.Success)
	assert.Equal(t, addWasm, read.Success.Wasm)
	assert.Equal(t, "add", read.Success.Function())

	resp, err = c.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = c.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = c.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = c.Update(ctx, id, tableBody())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditLog(t *testing.T) {
	var buf syncBuffer
	_, c := newTestServer(t, Options{AuditLog: &buf})
	ctx := context.Background()

	id := createID(t, c, tableBody())
	_, err := c.Update(ctx, id, tableBody())
	require.NoError(t, err)
	_, err = c.Invoke(ctx, id, json.RawMessage(`[1,1]`))
	require.NoError(t, err)
	_, err = c.Delete(ctx, id)
	require.NoError(t, err)
	_, err = c.Delete(ctx, id)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "INFO tx CREATE "+id)
	assert.Contains(t, lines[1], "INFO tx UPDATE "+id)
	assert.Contains(t, lines[2], "INFO tx RUN "+id)
	assert.Contains(t, lines[3], "INFO tx DELETE "+id)
	assert.Contains(t, lines[4], "ERROR wess::err Invalid Id: "+id)
}

func TestStorageDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, c := newTestServer(t, Options{Fs: fs, StorageDir: "rocksdb/dev"})

	id := createID(t, c, tableBody())
	path := filepath.Join("rocksdb/dev", id+".json")

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var m Module
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "add", m.Metadata.Func)

	_, err = c.Delete(context.Background(), id)
	require.NoError(t, err)
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMetrics(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Store.Set("a", Module{Wasm: addWasm}))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wess_modules 1")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	assert.NoError(t, <-done)
}
