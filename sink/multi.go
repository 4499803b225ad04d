package sink

import "github.com/nasa-jpl/cryosweep/sweep"

// Multi emits to every sink in order and stops at the first error
type Multi []sweep.SampleSink

// Emit sends s to each sink
func (m Multi) Emit(s sweep.Sample) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(s); err != nil {
			return err
		}
	}
	return nil
}
