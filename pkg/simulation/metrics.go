package simulation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SirsimTrajectoriesTotal counts finished trajectories by outcome
	SirsimTrajectoriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirsim_trajectories_total",
			Help: "Total number of trajectories run, by outcome",
		},
		[]string{"outcome"},
	)

	// SirsimTrajectorySeconds tracks wall time per trajectory
	SirsimTrajectorySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sirsim_trajectory_seconds",
			Help:    "Wall-clock time spent running one trajectory",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	// SirsimEnsembleTotal counts ensemble runs by run type and status
	SirsimEnsembleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirsim_ensemble_total",
			Help: "Total number of ensemble runs",
		},
		[]string{"run_type", "status"},
	)

	// SirsimEnsembleInFlight tracks ensembles currently running
	SirsimEnsembleInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sirsim_ensemble_in_flight",
			Help: "Number of ensembles currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(SirsimTrajectoriesTotal)
	prometheus.MustRegister(SirsimTrajectorySeconds)
	prometheus.MustRegister(SirsimEnsembleTotal)
	prometheus.MustRegister(SirsimEnsembleInFlight)
}
