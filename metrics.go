package main

import "github.com/prometheus/client_golang/prometheus"

var (
	metricConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mathkart_connected_clients",
		Help: "Currently connected WebSocket clients",
	})
	metricSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mathkart_active_sessions",
		Help: "Currently active game sessions",
	})
	metricRacesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mathkart_races_started_total",
		Help: "Races that reached the racing phase",
	})
	metricRacesFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mathkart_races_finished_total",
		Help: "Races that produced a winner",
	})
	metricAnswers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mathkart_answers_total",
		Help: "Answer attempts by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		metricConnections,
		metricSessions,
		metricRacesStarted,
		metricRacesFinished,
		metricAnswers,
	)
}
