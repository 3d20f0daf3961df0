package models

// ResNetMiniID identifies the image classifier.
const ResNetMiniID = "resnet-mini"

// ImageNet channel statistics used by the classifier's input normalization.
var (
	imageNetMean = []float32{0.485, 0.456, 0.406}
	imageNetStd  = []float32{0.229, 0.224, 0.225}
)

// NewResNetMini builds the image classifier: a two stage convolutional feature extractor with a
// linear head over 10 classes, taking [3, 32, 32] images.
func NewResNetMini() *Network {
	rng := newInitializer(ResNetMiniID)

	mean := NewParam(1, 3, 1, 1)
	std := NewParam(1, 3, 1, 1)
	copy(mean.Data, imageNetMean)
	copy(std.Data, imageNetStd)

	conv := func(name string, out, in int) Layer {
		return Layer{
			Name: name,
			Kind: LayerConv2D,
			Params: map[string]*Param{
				"weight": rng.uniform(NewParam(out, in, 3, 3), in*9),
				"bias":   rng.small(NewParam(1, out, 1, 1), 0.05),
			},
			Kernel: [2]int{3, 3},
		}
	}
	pool := func(name string) Layer {
		return Layer{Name: name, Kind: LayerMaxPool2D, Kernel: [2]int{2, 2}, Stride: [2]int{2, 2}}
	}

	// 32 -conv-> 30 -pool-> 15 -conv-> 13 -pool-> 6
	const features = 16 * 6 * 6

	return &Network{
		ID:   ResNetMiniID,
		Task: TaskImageClassification,
		Input: InputSpec{
			Kind:  InputImage,
			Shape: []int{3, 32, 32},
		},
		Layers: []Layer{
			{Name: "normalize", Kind: LayerNormalize, Params: map[string]*Param{"mean": mean, "std": std}},
			conv("conv1", 8, 3),
			{Name: "relu1", Kind: LayerReLU},
			pool("pool1"),
			conv("conv2", 16, 8),
			{Name: "relu2", Kind: LayerReLU},
			pool("pool2"),
			{Name: "flatten", Kind: LayerFlatten},
			{
				Name: "fc",
				Kind: LayerLinear,
				Params: map[string]*Param{
					"weight": rng.uniform(NewParam(features, 10), features),
					"bias":   rng.small(NewParam(1, 10), 0.05),
				},
			},
		},
		Variant: VariantEager,
	}
}
