package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/model"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		Server:   config.ServerSettings{MaxUploadBytes: 1 << 20, ShutdownTimeout: 2 * time.Second},
		Session:  config.SessionSettings{TTL: time.Minute, ImageTTL: time.Minute},
		Workflow: config.WorkflowSettings{RecoverOnFailure: true},
		History:  config.HistorySettings{Enabled: true, Path: filepath.Join(t.TempDir(), "history.db"), Limit: 10},
		Log:      config.LogSettings{Level: "info", Development: true},
	}
}

func decodeJSON(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func TestServeDrainsInFlightPress(t *testing.T) {
	gin.SetMode(gin.TestMode)

	loading := make(chan struct{})
	release := make(chan struct{})
	loader := model.LoaderFunc(func(context.Context) (model.Model, error) {
		close(loading)
		<-release
		return constModel{0.1, 0.7, 0.05, 0.05, 0.05, 0.05}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := newService(ctx, testSettings(t), loader, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- serve(ctx, svc.httpServer(), ln, 2*time.Second, zap.NewNop()) }()

	base := "http://" + ln.Addr().String()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(base+"/sessions", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeJSON(t, resp.Body)["session_id"].(string)
	resp.Body.Close()

	type pressResult struct {
		code  int
		phase any
		err   error
	}
	pressed := make(chan pressResult, 1)
	go func() {
		resp, err := client.Post(base+"/sessions/"+id+"/press", "application/json", nil)
		if err != nil {
			pressed <- pressResult{err: err}
			return
		}
		defer resp.Body.Close()
		var v map[string]any
		err = json.NewDecoder(resp.Body).Decode(&v)
		pressed <- pressResult{code: resp.StatusCode, phase: v["phase"], err: err}
	}()

	select {
	case <-loading:
	case <-time.After(2 * time.Second):
		t.Fatal("press did not reach the model loader")
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case r := <-pressed:
		require.NoError(t, r.err)
		assert.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, "modelReady", r.phase)
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight press did not complete")
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}

	_, err = client.Get(base + "/health")
	assert.Error(t, err, "listener still accepting after shutdown")
}

func TestServeReturnsListenerErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = serve(context.Background(), &http.Server{Handler: http.NotFoundHandler()}, ln, time.Second, zap.NewNop())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}

type constModel []float32

func (m constModel) Predict(context.Context, []float32) ([]float32, error) { return m, nil }

func writePNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 10, 10))))
	path := filepath.Join(t.TempDir(), "box.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestClassifyFilePrintsResult(t *testing.T) {
	loader := model.LoaderFunc(func(context.Context) (model.Model, error) {
		return constModel{0.6, 0.1, 0.1, 0.1, 0.05, 0.05}, nil
	})

	var out bytes.Buffer
	require.NoError(t, classifyFile(context.Background(), loader, writePNG(t), &out, zap.NewNop()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Cardboard", lines[0])
	assert.Equal(t, "Cardboard: %60.00", lines[1])
	assert.Equal(t, "Trash: %5.00", lines[6])
}

func TestClassifyFileErrors(t *testing.T) {
	failing := model.LoaderFunc(func(context.Context) (model.Model, error) {
		return nil, errors.New("no model")
	})
	err := classifyFile(context.Background(), failing, writePNG(t), io.Discard, zap.NewNop())
	assert.Error(t, err)

	err = classifyFile(context.Background(), failing, filepath.Join(t.TempDir(), "missing.png"), io.Discard, zap.NewNop())
	assert.Error(t, err)
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	root := rootCommand(&app{})
	root.SetArgs([]string{"classify", "x.png", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	assert.Error(t, root.Execute())
}
