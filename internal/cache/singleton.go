package cache

// Singletons bundles the process-wide cache services a host constructs
// once, explicitly, at server start: one backend, lock registry, eviction
// manager, and predictor, shared by every cache plugin instance rather
// than rebuilt per instance. This keeps their identity genuinely
// process-wide instead of a first-touch race hidden behind each plugin's
// own construction.
type Singletons struct {
	Backend      Backend
	LockRegistry *LockRegistry
	Eviction     EvictionManager
	Predictor    Predictor
}

// NewSingletons constructs the process-wide cache services from backendCfg.
// Eviction and Predictor are left nil when their corresponding flag is
// false, mirroring how a cache plugin instance treats an absent manager as
// disabled.
func NewSingletons(backendCfg BackendConfig, evictionEnabled, predictorEnabled bool) (*Singletons, error) {
	backend, err := SelectBackend(backendCfg)
	if err != nil {
		return nil, err
	}

	s := &Singletons{
		Backend:      backend,
		LockRegistry: NewLockRegistry(),
	}

	if evictionEnabled {
		capacity := backendCfg.MemoryCapacityBytes
		if capacity <= 0 {
			capacity = DefaultMemoryCapacityBytes
		}
		s.Eviction = NewLRUEviction(capacity)
	}
	if predictorEnabled {
		s.Predictor = NewBoundedPredictor()
	}

	return s, nil
}
