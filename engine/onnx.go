package engine

import (
	"fmt"
	"image"
	"sync"

	"github.com/roadeye/vtrack/postprocess/result"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ONNXOptions configure the ONNX Runtime backend
type ONNXOptions struct {
	// SharedLibrary is the path of libonnxruntime, empty uses the default
	// search path
	SharedLibrary string
	// Threads sets the intra and inter op thread counts when positive
	Threads int
	Log     *zap.Logger
}

// the runtime environment is process wide and shared by every session
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(lib string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}

		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("error initializing onnxruntime: %w", err)
		}
	}

	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--

	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// ONNX runs a model with ONNX Runtime.  Models exported with half=True take
// float16 input and output, which are converted on the fly.
type ONNX struct {
	Model
	mu      sync.Mutex
	session *ort.AdvancedSession
	fp16    bool
	in32    *ort.Tensor[float32]
	out32   *ort.Tensor[float32]
	in16    *ort.CustomDataTensor
	out16   *ort.CustomDataTensor
	outBuf  []float32
	outDims []int
	closed  bool
	log     *zap.Logger
}

// staticShape converts a model shape, rejecting dynamic axes
func staticShape(name string, s ort.Shape) ([]int, error) {

	dims := make([]int, len(s))

	for i, d := range s {
		if d <= 0 {
			return nil, fmt.Errorf("%s has dynamic shape %v, export with dynamic=False", name, s)
		}

		dims[i] = int(d)
	}

	return dims, nil
}

// NewONNX creates a session for the model.  The input and output shapes and
// element types are read from the model itself.
func NewONNX(path string, cfg ModelConfig, opts ONNXOptions) (*ONNX, error) {

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	if err := acquireEnvironment(opts.SharedLibrary); err != nil {
		return nil, err
	}

	o := &ONNX{log: opts.Log}

	if err := o.init(path, cfg, opts); err != nil {
		o.destroy()
		releaseEnvironment()
		return nil, err
	}

	return o, nil
}

func (o *ONNX) init(path string, cfg ModelConfig, opts ONNXOptions) error {

	inputs, outputs, err := ort.GetInputOutputInfo(path)

	if err != nil {
		return fmt.Errorf("error reading model io: %w", err)
	}

	if len(inputs) != 1 || len(outputs) < 1 {
		return fmt.Errorf("expected 1 input and at least 1 output, got %d and %d",
			len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]

	inDims, err := staticShape("input "+in.Name, in.Dimensions)

	if err != nil {
		return err
	}

	if len(inDims) != 4 || inDims[1] != 3 {
		return fmt.Errorf("input %s shape %v is not NCHW with 3 channels", in.Name, inDims)
	}

	if o.outDims, err = staticShape("output "+out.Name, out.Dimensions); err != nil {
		return err
	}

	if cfg.Model.InputSize > 0 && cfg.Model.InputSize != inDims[3] {
		o.log.Warn("model config input size differs from model, using model",
			zap.Int("config", cfg.Model.InputSize),
			zap.Int("model", inDims[3]),
		)
	}

	o.fp16 = in.DataType == ort.TensorElementDataTypeFloat16

	var inT, outT ort.ArbitraryTensor

	if o.fp16 {
		inBytes := make([]byte, 2*in.Dimensions.FlattenedSize())

		if o.in16, err = ort.NewCustomDataTensor(in.Dimensions, inBytes,
			ort.TensorElementDataTypeFloat16); err != nil {
			return fmt.Errorf("error creating input tensor: %w", err)
		}

		outBytes := make([]byte, 2*out.Dimensions.FlattenedSize())

		if o.out16, err = ort.NewCustomDataTensor(out.Dimensions, outBytes,
			ort.TensorElementDataTypeFloat16); err != nil {
			return fmt.Errorf("error creating output tensor: %w", err)
		}

		o.outBuf = make([]float32, out.Dimensions.FlattenedSize())
		inT, outT = o.in16, o.out16

	} else {
		if o.in32, err = ort.NewEmptyTensor[float32](in.Dimensions); err != nil {
			return fmt.Errorf("error creating input tensor: %w", err)
		}

		if o.out32, err = ort.NewEmptyTensor[float32](out.Dimensions); err != nil {
			return fmt.Errorf("error creating output tensor: %w", err)
		}

		inT, outT = o.in32, o.out32
	}

	options, err := ort.NewSessionOptions()

	if err != nil {
		return fmt.Errorf("error creating session options: %w", err)
	}

	defer options.Destroy()

	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			return fmt.Errorf("error setting intra op threads: %w", err)
		}

		if err := options.SetInterOpNumThreads(opts.Threads); err != nil {
			return fmt.Errorf("error setting inter op threads: %w", err)
		}
	}

	o.session, err = ort.NewAdvancedSession(path,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{inT}, []ort.ArbitraryTensor{outT},
		options,
	)

	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}

	o.Model = Model{
		path:  path,
		cfg:   cfg,
		names: cfg.ClassNames(),
		stage: newStage(image.Pt(inDims[3], inDims[2]), cfg),
	}

	o.log.Debug("onnxruntime session created",
		zap.String("input", in.Name),
		zap.Ints("input_shape", inDims),
		zap.String("output", out.Name),
		zap.Ints("output_shape", o.outDims),
		zap.Bool("fp16", o.fp16),
	)

	return nil
}

// Detect runs the session on a BGR image
func (o *ONNX) Detect(img gocv.Mat, conf float32) ([]result.DetectResult, error) {

	o.mu.Lock()
	defer o.mu.Unlock()

	boxed, err := o.stage.letterbox(img)

	if err != nil {
		return nil, err
	}

	if o.fp16 {
		err = FillCHW16(boxed, o.in16.GetData())
	} else {
		err = FillCHW(boxed, o.in32.GetData())
	}

	if err != nil {
		return nil, fmt.Errorf("error preparing input: %w", err)
	}

	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("error running inference: %w", err)
	}

	output := o.outBuf

	if o.fp16 {
		Float16ToFloat32(o.out16.GetData(), o.outBuf)
	} else {
		output = o.out32.GetData()
	}

	return o.stage.decode(output, o.outDims, conf)
}

// destroy releases whatever init managed to create
func (o *ONNX) destroy() {

	if o.session != nil {
		o.session.Destroy()
	}

	if o.in32 != nil {
		o.in32.Destroy()
	}

	if o.out32 != nil {
		o.out32.Destroy()
	}

	if o.in16 != nil {
		o.in16.Destroy()
	}

	if o.out16 != nil {
		o.out16.Destroy()
	}

	if o.stage != nil {
		o.stage.close()
	}
}

// Close destroys the session and its tensors
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	o.closed = true
	o.destroy()
	releaseEnvironment()

	return nil
}
