package molhgcn

import (
	"io"
	"math/rand/v2"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"

	"github.com/fychen32/MolHGCN/hypergraph"
)

// Dataset yields fixed-shape batches of molecules from one split. It implements
// train.Dataset and is safe for concurrent Yield calls, so it can be wrapped by
// datasets.CustomParallel for prefetching.
type Dataset struct {
	name      string
	graphs    []*hypergraph.Graph
	labels    []float32
	batchSize int
	budgets   hypergraph.Budgets

	atomDim, bondDim, groupDim int

	shuffle  bool
	infinite bool

	mu   sync.Mutex
	rng  *rand.Rand
	next int
	// order indexes graphs; reshuffled on Reset and on each infinite epoch.
	order []int
}

// NewDataset creates a dataset over split, yielding batches of batchSize
// graphs padded to budgets. The split must have positive feature widths for
// all three component types.
func NewDataset(name string, split *hypergraph.Split, batchSize int, budgets hypergraph.Budgets) (*Dataset, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset %q: batch size must be positive, got %d", name, batchSize)
	}
	if len(split.Graphs) == 0 {
		return nil, errors.Errorf("dataset %q: empty split", name)
	}
	atomDim, bondDim, groupDim := split.FeatureDims()
	if atomDim <= 0 || bondDim <= 0 || groupDim <= 0 {
		return nil, errors.Errorf("dataset %q: feature widths must be positive, got atoms=%d bonds=%d groups=%d",
			name, atomDim, bondDim, groupDim)
	}
	ds := &Dataset{
		name:      name,
		graphs:    split.Graphs,
		labels:    split.Labels,
		batchSize: batchSize,
		budgets:   budgets,
		atomDim:   atomDim,
		bondDim:   bondDim,
		groupDim:  groupDim,
		rng:       rand.New(rand.NewPCG(uint64(len(split.Graphs)), 13)),
		order:     make([]int, len(split.Graphs)),
	}
	for i := range ds.order {
		ds.order[i] = i
	}
	return ds, nil
}

// Shuffle sets the dataset to yield batches in random order. Returns the
// dataset for chaining.
func (ds *Dataset) Shuffle() *Dataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.shuffle = true
	ds.shuffleLocked()
	return ds
}

// Infinite sets the dataset to loop forever, reshuffling (if set) at each pass.
// Returns the dataset for chaining.
func (ds *Dataset) Infinite() *Dataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.infinite = true
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// NumBatchesPerEpoch returns the number of Yields per pass over the split,
// counting a final incomplete batch.
func (ds *Dataset) NumBatchesPerEpoch() int {
	return (len(ds.graphs) + ds.batchSize - 1) / ds.batchSize
}

// Reset implements train.Dataset, restarting the dataset from the beginning.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
	if ds.shuffle {
		ds.shuffleLocked()
	}
}

func (ds *Dataset) shuffleLocked() {
	ds.rng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// Yield implements train.Dataset. The spec returned is the batch's
// hypergraph.Spec; a final incomplete batch has fewer graphs and hence a
// different spec.
func (ds *Dataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	graphs, batchLabels, err := ds.take()
	if err != nil {
		return nil, nil, nil, err
	}
	batch, err := hypergraph.NewBatch(graphs, batchLabels, ds.atomDim, ds.bondDim, ds.groupDim, ds.budgets)
	if err != nil {
		return nil, nil, nil, errors.WithMessagef(err, "dataset %q", ds.name)
	}
	return batch.Spec(), batch.Inputs(), batch.Labels(), nil
}

// take reserves the next batch of indices under the lock and materializes the
// graph and label slices.
func (ds *Dataset) take() ([]*hypergraph.Graph, []float32, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.next >= len(ds.order) {
		if !ds.infinite {
			return nil, nil, io.EOF
		}
		ds.next = 0
		if ds.shuffle {
			ds.shuffleLocked()
		}
	}
	end := min(ds.next+ds.batchSize, len(ds.order))
	indices := ds.order[ds.next:end]
	ds.next = end
	graphs := make([]*hypergraph.Graph, len(indices))
	labels := make([]float32, len(indices))
	for i, idx := range indices {
		graphs[i] = ds.graphs[idx]
		labels[i] = ds.labels[idx]
	}
	return graphs, labels, nil
}

// parallelize wraps ds with a prefetching worker pool of the given size.
// Workers only assemble read-only batches; all model state stays with the
// training loop.
func parallelize(ds train.Dataset, workers int) train.Dataset {
	if workers <= 1 {
		return ds
	}
	return datasets.CustomParallel(ds).Parallelism(workers).Buffer(2 * workers).Start()
}
