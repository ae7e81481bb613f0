package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_stream_entries_total",
		Help: "Stream entries read by the ingestor, by result.",
	}, []string{"stream", "result"})

	pollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_stream_poll_errors_total",
		Help: "Failed reads of inbound streams.",
	}, []string{"stream"})
)

const (
	resultHandled = "handled"
	resultDecode  = "decode_error"
	resultHandler = "handler_error"
)
