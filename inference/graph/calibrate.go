package graph

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference/cache"
	"github.com/nvr-ai/go-ml-bench/inference/quant"
	"github.com/nvr-ai/go-ml-bench/models"
)

// Calibration holds the activation ranges observed while running calibration batches.
type Calibration struct {
	// Input observes the graph input.
	Input *quant.Observer
	// Layers observes the input of each quantizable layer, keyed by layer index.
	Layers  map[int]*quant.Observer
	Batches int
}

// Calibrate runs net in float32 over the calibration batches and records activation ranges.
//
// Arguments:
//   - net: The network, in the variant that will be quantized.
//   - batches: Calibration inputs; all must share one batch size.
//
// Returns:
//   - *Calibration: The observed ranges.
//   - error: An error if there are no batches or a batch fails to run.
func Calibrate(net *models.Network, batches []*models.Sample) (*Calibration, error) {
	if len(batches) == 0 {
		return nil, errors.New("calibration needs at least one batch")
	}

	prog, err := Capture(net, batches[0].Batch, Options{Observe: true})
	if err != nil {
		return nil, err
	}
	defer prog.Close()

	cal := &Calibration{Input: quant.NewObserver(), Layers: make(map[int]*quant.Observer)}
	for i, s := range batches {
		if err := prog.Bind(s); err != nil {
			return nil, errors.Wrapf(err, "calibration batch %d", i)
		}
		if err := prog.Run(); err != nil {
			return nil, errors.Wrapf(err, "calibration batch %d", i)
		}
		cal.Input.Observe(s.Data)
		for layer, values := range prog.Observed() {
			obs, ok := cal.Layers[layer]
			if !ok {
				obs = quant.NewObserver()
				cal.Layers[layer] = obs
			}
			obs.Observe(values)
		}
		cal.Batches++
	}
	return cal, nil
}

// Quantize converts the quantizable weights of net to per-channel int8 and records the
// calibrated activation scales.
//
// Only InputScale and the weights affect the captured int8 graph; the per-layer scales are
// recorded in the artifact for reporting.
//
// Arguments:
//   - net: The network whose weights are quantized.
//   - cal: The calibration of the same network variant.
//
// Returns:
//   - *cache.Artifact: The artifact, without key or fingerprint.
//   - error: An error if a weight cannot be quantized.
func Quantize(net *models.Network, cal *Calibration) (*cache.Artifact, error) {
	a := &cache.Artifact{
		Weights:            make(map[string]*quant.QuantizedTensor),
		ActivationScales:   make(map[string]float32),
		InputScale:         cal.Input.Scale(),
		CalibrationBatches: cal.Batches,
	}
	for i, l := range net.Layers {
		params := l.QuantizableParams()
		if len(params) == 0 {
			continue
		}
		for name, axis := range params {
			p, ok := l.Params[name]
			if !ok {
				return nil, errors.Errorf("%s: missing parameter %s", l.Name, name)
			}
			qt, err := quant.QuantizePerChannel(p.Data, p.Shape, axis)
			if err != nil {
				return nil, errors.Wrapf(err, "quantize %s", models.ParamID(l.Name, name))
			}
			a.Weights[models.ParamID(l.Name, name)] = qt
		}
		if obs, ok := cal.Layers[i]; ok {
			a.ActivationScales[l.Name] = obs.Scale()
		}
	}
	return a, nil
}

// dequantized captures the int8 weights of an artifact as float32.
func dequantized(a *cache.Artifact) ParamTransform {
	return func(id string, p *models.Param) ([]float32, error) {
		qt, ok := a.Weights[id]
		if !ok {
			return nil, nil
		}
		if len(qt.Data) != len(p.Data) {
			return nil, errors.Errorf("artifact weight %s has %d values, model has %d", id, len(qt.Data), len(p.Data))
		}
		return qt.Dequantize(), nil
	}
}

// bfloat16 rounds every parameter to bfloat16 precision.
func bfloat16(_ string, p *models.Param) ([]float32, error) {
	out := append([]float32(nil), p.Data...)
	quant.RoundSliceBF16(out)
	return out, nil
}
