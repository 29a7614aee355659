package models

import "time"

// ResultStatus is the final disposition of a simulation run (§3, §6).
type ResultStatus string

const (
	ResultStatusCompleted         ResultStatus = "completed"
	ResultStatusCyclesResolved    ResultStatus = "cycles_resolved"
	ResultStatusCalculationFailed ResultStatus = "calculation_failed"
	ResultStatusValidationFailed  ResultStatus = "validation_failed"
	ResultStatusFailed            ResultStatus = "failed"
)

// ResultRecord is the JSON-serializable outcome of one Simulation.Run call.
type ResultRecord struct {
	SimulationID     string         `json:"simulation_id"`
	Status           ResultStatus   `json:"status"`
	ExecutionTime    time.Duration  `json:"-"`
	ExecutionSeconds float64        `json:"execution_time"`
	CalculatedValues map[string]float64 `json:"calculated_values"`
	CyclesResolved   int            `json:"cycles_resolved"`
	Metrics          map[string]any `json:"metrics"`
	ErrorMessage     *string        `json:"error_message"`
}

// NewResultRecord seeds a ResultRecord with empty collections so callers
// never need a nil check before indexing into CalculatedValues or Metrics.
func NewResultRecord(simulationID string) *ResultRecord {
	return &ResultRecord{
		SimulationID:     simulationID,
		Status:           ResultStatusFailed,
		CalculatedValues: make(map[string]float64),
		Metrics:          make(map[string]any),
	}
}

// Finalize stamps the measured execution time in both the internal
// Duration and the JSON-facing seconds field.
func (r *ResultRecord) Finalize(elapsed time.Duration) {
	r.ExecutionTime = elapsed
	r.ExecutionSeconds = elapsed.Seconds()
}
