package inference

import (
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Session wraps an onnxruntime session together with its preallocated input
// and output tensors. Run is serialized with an internal mutex: the native
// runtime tolerates concurrent calls on most builds but makes no guarantee,
// so one in-flight inference per session is the contract here.
//
// The session owns its tensors; Destroy releases everything.
type Session struct {
	session *ort.AdvancedSession
	inputs  []ort.ArbitraryTensor
	outputs []ort.ArbitraryTensor
	mu      sync.Mutex
}

// NewSession creates a session for the model at modelPath, binding the given
// preallocated tensors to the named graph inputs and outputs. Initialize
// must have succeeded first. Ownership of the tensors passes to the
// returned session.
//
// Arguments:
//   - modelPath: Path to the ONNX model file.
//   - inputNames: Names of the model's input tensors.
//   - outputNames: Names of the model's output tensors.
//   - inputs: Preallocated input tensors, one per input name.
//   - outputs: Preallocated output tensors, one per output name.
//   - gpu: When true, the CUDA execution provider is appended; session
//     creation fails if the runtime build does not carry it.
//
// Returns:
//   - *Session: The runnable session.
//   - error: An error if session creation fails.
func NewSession(
	modelPath string,
	inputNames, outputNames []string,
	inputs, outputs []ort.ArbitraryTensor,
	gpu bool,
) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating ORT session options")
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(4)
	options.SetInterOpNumThreads(2)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	if gpu {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, errors.Wrap(err, "creating CUDA provider options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, errors.Wrap(err, "appending CUDA execution provider")
		}
	}

	session, err := ort.NewAdvancedSession(modelPath, inputNames, outputNames, inputs, outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "creating ORT session for %s", modelPath)
	}

	return &Session{session: session, inputs: inputs, outputs: outputs}, nil
}

// Run executes one inference over the currently populated input tensors.
func (s *Session) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return errors.New("session destroyed")
	}
	return s.session.Run()
}

// Destroy releases the native session and all bound tensors. Safe to call
// repeatedly.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.session.Destroy()
	s.session = nil
	for _, t := range s.inputs {
		t.Destroy()
	}
	for _, t := range s.outputs {
		t.Destroy()
	}
	s.inputs = nil
	s.outputs = nil
}
