package convert

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roadeye/vtrack/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records the command and writes the artefact the exporter would
type fakeRunner struct {
	name string
	args []string
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args

	if f.err != nil {
		return []byte("Traceback: boom"), f.err
	}

	var weights, format string

	for _, a := range args {
		if v, ok := strings.CutPrefix(a, "model="); ok {
			weights = v
		}

		if v, ok := strings.CutPrefix(a, "format="); ok {
			format = v
		}
	}

	return []byte("export complete"), os.WriteFile(ArtefactPath(weights, format), []byte("onnx"), 0o644)
}

func TestExportArgs(t *testing.T) {
	o := DefaultOptions()

	assert.Equal(t, []string{
		"export",
		"model=yolov8n.pt",
		"format=onnx",
		"imgsz=416",
		"int8=True",
		"nms=True",
		"half=True",
		"simplify=True",
		"dynamic=False",
		"device=cpu",
	}, ExportArgs(o, "yolov8n.pt"))

	o.Quantize = false
	o.NMS = false
	o.InputSize = 640
	args := ExportArgs(o, "w/yolov8s.pt")
	assert.Contains(t, args, "int8=False")
	assert.Contains(t, args, "nms=False")
	assert.Contains(t, args, "imgsz=640")
	assert.Contains(t, args, "model=w/yolov8s.pt")
}

func TestValidate(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.Validate())

	for _, size := range []int{0, -32, 100, 417} {
		o.InputSize = size
		assert.ErrorIs(t, o.Validate(), ErrInvalidInputSize, "size %d", size)
	}

	o = DefaultOptions()
	o.Format = "pdf"
	assert.ErrorContains(t, o.Validate(), "unsupported export format")
}

func TestArtefactPath(t *testing.T) {
	assert.Equal(t, "models/yolov8n.onnx", ArtefactPath("models/yolov8n.pt", "onnx"))
	assert.Equal(t, "yolov8s_openvino_model", ArtefactPath("yolov8s.pt", "openvino"))
	assert.Equal(t, "yolov8x.mlpackage", ArtefactPath("yolov8x.pt", "coreml"))
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	weights := filepath.Join(dir, "yolov8n.pt")
	require.NoError(t, os.WriteFile(weights, []byte("pt"), 0o644))

	o := DefaultOptions()
	o.Model = weights
	o.OutputDir = filepath.Join(dir, "out")

	runner := &fakeRunner{}
	res, err := New(runner, nil).Convert(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, "yolo", runner.name)
	assert.Equal(t, ExportArgs(o, weights), runner.args)
	assert.False(t, res.Downloaded)

	assert.Equal(t, filepath.Join(o.OutputDir, "yolov8n_optimized.onnx"), res.Model)
	assert.FileExists(t, res.Model)
	assert.NoFileExists(t, filepath.Join(dir, "yolov8n.onnx"))

	cfg, err := engine.LoadModelConfig(res.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, "yolov8n_optimized", cfg.Model.Name)
	assert.Equal(t, 416, cfg.Model.InputSize)
	assert.Len(t, cfg.Model.Classes, 80)
}

func TestConvertRejectsBeforeWork(t *testing.T) {
	o := DefaultOptions()
	o.InputSize = 500
	o.OutputDir = filepath.Join(t.TempDir(), "out")

	runner := &fakeRunner{}
	_, err := New(runner, nil).Convert(context.Background(), o)

	assert.ErrorIs(t, err, ErrInvalidInputSize)
	assert.Empty(t, runner.name)
	assert.NoDirExists(t, o.OutputDir)
}

func TestConvertExportFailure(t *testing.T) {
	dir := t.TempDir()
	weights := filepath.Join(dir, "custom.pt")
	require.NoError(t, os.WriteFile(weights, []byte("pt"), 0o644))

	o := DefaultOptions()
	o.Model = weights
	o.OutputDir = dir

	_, err := New(&fakeRunner{err: errors.New("exit status 1")}, nil).Convert(context.Background(), o)
	assert.ErrorContains(t, err, "export failed")
	assert.ErrorContains(t, err, "Traceback")
}

func TestConvertUnknownWeightsMissing(t *testing.T) {
	o := DefaultOptions()
	o.Model = filepath.Join(t.TempDir(), "custom.pt")
	o.OutputDir = t.TempDir()

	_, err := New(&fakeRunner{}, nil).Convert(context.Background(), o)
	assert.ErrorContains(t, err, "not found")
}

func TestConvertDownloadsOfficialWeights(t *testing.T) {
	var requested string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	dir := t.TempDir()

	o := DefaultOptions()
	o.Model = filepath.Join(dir, "yolov8s.pt")
	o.OutputDir = dir
	o.WeightsURL = srv.URL + "/assets/%s"

	res, err := New(&fakeRunner{}, nil).Convert(context.Background(), o)
	require.NoError(t, err)

	assert.True(t, res.Downloaded)
	assert.Equal(t, "/assets/yolov8s.pt", requested)

	data, err := os.ReadFile(o.Model)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.NoFileExists(t, o.Model+".tmp")
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "yolov8n.pt")

	err := NewDownloader().Fetch(context.Background(), srv.URL+"/missing", dest)
	assert.ErrorContains(t, err, "404")
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".tmp")
}
