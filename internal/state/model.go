package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ModelType tags a Model.
type ModelType string

const (
	// ModelBasic is a scripted actor that logs in, reads and writes its own
	// entry and logs out again.
	ModelBasic ModelType = "basic"
	// ModelMarkov picks each next action from a per-action probability row.
	ModelMarkov ModelType = "markov"
)

// Model describes the behavior assigned to a person. It is a description
// only; the live actor is built from it when the run starts. The zero value is
// the Basic model, and the only form a Basic model decodes to.
type Model struct {
	Type   ModelType
	Markov *MarkovParams
}

// MarkovParams parameterize a Markov model.
type MarkovParams struct {
	// DistributionsMatrix is the row-major N*N transition matrix where N is
	// the number of actions. Row i holds the probabilities of moving from
	// action i to every action.
	DistributionsMatrix []float64 `json:"distributions_matrix"`
	// RNGSeed makes the action sequence reproducible when set.
	RNGSeed *uint64 `json:"rng_seed"`
	// Delay, when set, is the normal distribution the pause before each
	// action is drawn from, in milliseconds.
	Delay *NormalDist `json:"normal_dist_mean_and_std_dev"`
}

// NormalDist is a (mean, standard deviation) pair, encoded as a two element
// array.
type NormalDist struct {
	Mean   float64
	StdDev float64
}

// MarshalJSON encodes the pair as [mean, std_dev].
func (n NormalDist) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{n.Mean, n.StdDev})
}

// UnmarshalJSON decodes [mean, std_dev].
func (n *NormalDist) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("normal distribution needs [mean, std_dev], got %d values", len(pair))
	}
	n.Mean, n.StdDev = pair[0], pair[1]
	return nil
}

// BasicModel returns a Basic model, which is the zero Model.
func BasicModel() Model {
	return Model{}
}

// MarkovModel returns a Markov model. The matrix is copied.
func MarkovModel(matrix []float64, seed *uint64, delay *NormalDist) Model {
	return Model{
		Type: ModelMarkov,
		Markov: &MarkovParams{
			DistributionsMatrix: slices.Clone(matrix),
			RNGSeed:             seed,
			Delay:               delay,
		},
	}
}

// Kind returns the model tag, treating the zero value as Basic.
func (m Model) Kind() ModelType {
	if m.Type == "" {
		return ModelBasic
	}
	return m.Type
}

type basicDoc struct {
	Type ModelType `json:"type"`
}

type markovDoc struct {
	Type ModelType `json:"type"`
	*MarkovParams
}

// MarshalJSON writes {"type":"basic"} or {"type":"markov", ...params}.
func (m Model) MarshalJSON() ([]byte, error) {
	switch m.Kind() {
	case ModelBasic:
		return json.Marshal(basicDoc{Type: ModelBasic})
	case ModelMarkov:
		if m.Markov == nil || m.Markov.DistributionsMatrix == nil {
			return nil, errors.New("markov model without a distributions matrix")
		}
		return json.Marshal(markovDoc{Type: ModelMarkov, MarkovParams: m.Markov})
	}
	return nil, fmt.Errorf("unknown model type %q", m.Type)
}

// UnmarshalJSON reads the tagged model document.
func (m *Model) UnmarshalJSON(data []byte) error {
	var doc struct {
		Type ModelType `json:"type"`
		MarkovParams
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	switch doc.Type {
	case ModelBasic:
		*m = BasicModel()
	case ModelMarkov:
		if doc.DistributionsMatrix == nil {
			return errors.New("markov model requires distributions_matrix")
		}
		params := doc.MarkovParams
		*m = Model{Type: ModelMarkov, Markov: &params}
	default:
		return fmt.Errorf("unknown model type %q", doc.Type)
	}
	return nil
}
