package battery

import "github.com/powerhat/charge-controller/conf"

// StartThreshold is the relative charge at which charging resumes.
// A value of 0 turns start threshold control off.
var StartThreshold = conf.Setting{
	ID:          "battery-charge-start-threshold",
	Label:       "Battery Charging Start Threshold",
	Description: "Relative charge at which the battery will start charging",
	Min:         0,
	Max:         99,
	Default:     0,
}

// StopThreshold is the relative charge at which charging halts.
// A value of 100 turns stop threshold control off.
var StopThreshold = conf.Setting{
	ID:          "battery-charge-stop-threshold",
	Label:       "Battery Charging Stop Threshold",
	Description: "Relative charge at which the battery will stop charging",
	Min:         1,
	Max:         100,
	Default:     100,
}

// Thresholds is a typed view over the two registered threshold settings.
// Range validation is the store's job, against each setting's own declared
// bounds only: start < stop is not enforced anywhere.
type Thresholds struct {
	store *conf.Store
}

func NewThresholds(store *conf.Store) (Thresholds, error) {
	if err := store.Register(StartThreshold); err != nil {
		return Thresholds{}, err
	}
	if err := store.Register(StopThreshold); err != nil {
		return Thresholds{}, err
	}
	return Thresholds{store: store}, nil
}

func (t Thresholds) Start() int { return t.store.Get(StartThreshold) }

func (t Thresholds) Stop() int { return t.store.Get(StopThreshold) }

// SetStart reports whether the store accepted the value.
func (t Thresholds) SetStart(v int) bool { return t.store.Set(StartThreshold, v) }

// SetStop reports whether the store accepted the value.
func (t Thresholds) SetStop(v int) bool { return t.store.Set(StopThreshold, v) }
