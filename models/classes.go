package models

import (
	"sort"

	"github.com/pkg/errors"
)

// OutputClass represents one classifier label.
type OutputClass struct {
	// The integer index of the logit.
	Index int `json:"index"`
	// The human-readable label.
	Name string `json:"name"`
}

// OutputClassSet is the full list of labels of a classifier head.
type OutputClassSet struct {
	Name    string
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// Prediction is a class with its logit.
type Prediction struct {
	OutputClass
	Score float32 `json:"score"`
}

// CIFAR10Classes labels the classifier head of resnet-mini.
var CIFAR10Classes = newClassSet("cifar10",
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
)

var classSets = map[string]*OutputClassSet{
	ResNetMiniID: CIFAR10Classes,
}

func newClassSet(name string, labels ...string) *OutputClassSet {
	set := &OutputClassSet{Name: name, Classes: make([]OutputClass, len(labels))}
	for i, l := range labels {
		set.Classes[i] = OutputClass{Index: i, Name: l}
	}
	set.BuildNameIndexMap()
	return set
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// ClassesFor returns the label set of a classifier, or false for networks without one.
func ClassesFor(id string) (*OutputClassSet, bool) {
	set, ok := classSets[id]
	return set, ok
}

// GetName returns the class name for an index.
func (s *OutputClassSet) GetName(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("index %d out of range for %s", idx, s.Name)
	}
	return s.Classes[idx].Name, nil
}

// GetIndex returns the class index for a name.
func (s *OutputClassSet) GetIndex(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in %s", name, s.Name)
	}
	return idx, nil
}

// TopK returns the k highest scoring classes of one sample, best first.
//
// Arguments:
//   - logits: The output of the network; only the first len(s.Classes) values (the first
//     sample of a batch) are read.
//   - k: The number of predictions, clamped to the class count.
//
// Returns:
//   - []Prediction: The predictions.
//   - error: An error if logits holds fewer values than there are classes.
func (s *OutputClassSet) TopK(logits []float32, k int) ([]Prediction, error) {
	n := len(s.Classes)
	if len(logits) < n {
		return nil, errors.Errorf("%d logits for %d classes", len(logits), n)
	}
	preds := make([]Prediction, n)
	for i, c := range s.Classes {
		preds[i] = Prediction{OutputClass: c, Score: logits[i]}
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Score > preds[j].Score })
	if k > n {
		k = n
	}
	if k < 0 {
		k = 0
	}
	return preds[:k], nil
}
