package estimators

import (
	"fmt"
	"sort"
	"sync"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/files"
)

// envelope is the on-disk form of an artifact.
type envelope struct {
	Kind    Kind
	Name    string
	Payload []byte
}

// Codec persists estimators and rebuilds them by kind. Packages that add an
// estimator kind register a constructor on their own codec instance.
type Codec struct {
	mu        sync.RWMutex
	factories map[Kind]func() Estimator
}

// NewCodec returns a codec that knows the classical kinds.
func NewCodec() *Codec {
	c := &Codec{factories: make(map[Kind]func() Estimator)}
	c.Register(KindLinear, func() Estimator { return NewLinearRegression() })
	c.Register(KindEnsembleTree, func() Estimator { return &RandomForest{} })
	c.Register(KindKernel, func() Estimator { return &KernelRidge{} })
	return c
}

// Register adds or replaces the constructor for kind.
func (c *Codec) Register(kind Kind, factory func() Estimator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[kind] = factory
}

// Kinds lists the registered kinds, sorted
func (c *Codec) Kinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]Kind, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Save writes est atomically. Artifacts are written once; a retrain
// produces a new path.
func (c *Codec) Save(path string, est Estimator) error {
	payload, err := est.MarshalBinary()
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("encode %s", est.Name()), err)
	}
	if err := files.SaveGob(path, envelope{Kind: est.Kind(), Name: est.Name(), Payload: payload}); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s", est.Name()), err)
	}
	return nil
}

// Load reads an artifact written by Save.
func (c *Codec) Load(path string) (Estimator, error) {
	var env envelope
	if err := files.LoadGob(path, &env); err != nil {
		return nil, apperrors.NewStorageError("load artifact", err)
	}

	c.mu.RLock()
	factory, ok := c.factories[env.Kind]
	c.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewDataError(fmt.Sprintf("artifact %s has unknown kind %q", path, env.Kind), nil)
	}

	est := factory()
	if err := est.UnmarshalBinary(env.Payload); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("decode %s", env.Name), err)
	}
	return est, nil
}

// Roster builds the enabled classical estimators with the configured
// hyperparameters, in configuration order.
func Roster(cfg config.EstimatorsConfig, seed int64) ([]Estimator, error) {
	out := make([]Estimator, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		switch name {
		case NameLinear:
			out = append(out, NewLinearRegression())
		case NameForest:
			out = append(out, NewRandomForest(cfg.ForestTrees, cfg.ForestMaxDepth, cfg.ForestMinSamplesSplit, seed))
		case NameKernel:
			out = append(out, NewKernelRidge(cfg.KernelC, cfg.KernelGamma, cfg.KernelMaxSamples))
		default:
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown estimator %q", name), nil)
		}
	}
	return out, nil
}
