package platform

import (
	"time"

	"github.com/nerrad567/caseta-bridge/internal/drivers"
)

// DeviceResult is the outcome of one device in a pass.
type DeviceResult struct {
	AccessoryID string          `json:"accessory_id"`
	Name        string          `json:"name"`
	DeviceType  string          `json:"device_type"`
	Outcome     drivers.Outcome `json:"outcome"`
}

// Report summarises one reconciliation pass over a hub.
type Report struct {
	HubID     string         `json:"hub_id"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
	Results   []DeviceResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
}

func newReport(hubID string, started time.Time, elapsed time.Duration, results []DeviceResult) Report {
	r := Report{HubID: hubID, StartedAt: started, Elapsed: elapsed, Results: results}
	for _, res := range results {
		switch res.Outcome.Kind {
		case drivers.KindSuccess:
			r.Succeeded++
		case drivers.KindSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
	return r
}

// Failures returns the results whose outcome is Error.
func (r Report) Failures() []DeviceResult {
	var out []DeviceResult
	for _, res := range r.Results {
		if res.Outcome.Kind == drivers.KindError {
			out = append(out, res)
		}
	}
	return out
}
