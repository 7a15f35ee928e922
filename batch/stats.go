package batch

import (
	"time"

	"github.com/c360/iqrfgw/correlator"
)

// Stats aggregates a run.
type Stats struct {
	Sent            int           `json:"sent"`
	OK              int           `json:"ok"`
	Failed          int           `json:"failed"`
	Timeouts        int           `json:"timeouts"`
	Busy            int           `json:"busy"`
	TransportErrors int           `json:"transport_errors"`
	Retries         int           `json:"retries"`
	MinLatency      time.Duration `json:"min_latency"`
	MaxLatency      time.Duration `json:"max_latency"`
	MeanLatency     time.Duration `json:"mean_latency"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Summarize computes Stats over items. A request counts as OK when it matched a response
// whose daemon status is success; latency covers matched responses only.
func Summarize(items []Item, elapsed time.Duration) Stats {
	s := Stats{Sent: len(items), Elapsed: elapsed}

	var total time.Duration
	matched := 0
	for _, it := range items {
		res := it.Result
		if it.Attempts > 1 {
			s.Retries += it.Attempts - 1
		}
		switch res.Outcome {
		case correlator.Timeout:
			s.Timeouts++
		case correlator.TransportBusy:
			s.Busy++
		case correlator.TransportError:
			s.TransportErrors++
		case correlator.Success:
			matched++
			total += res.Elapsed
			if s.MinLatency == 0 || res.Elapsed < s.MinLatency {
				s.MinLatency = res.Elapsed
			}
			s.MaxLatency = max(s.MaxLatency, res.Elapsed)
		}

		if res.OK() {
			s.OK++
		} else {
			s.Failed++
		}
	}

	if matched > 0 {
		s.MeanLatency = total / time.Duration(matched)
	}
	return s
}
