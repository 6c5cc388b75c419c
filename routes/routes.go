package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DrFlight7/scorecast-live-streamer/internal/client"
	"github.com/DrFlight7/scorecast-live-streamer/internal/relay"
	"github.com/DrFlight7/scorecast-live-streamer/internal/status"
)

type Router struct {
	relayHandler *relay.Handler
	reporter     *status.Reporter
}

func NewRouter(relayHandler *relay.Handler, reporter *status.Reporter) *Router {
	return &Router{
		relayHandler: relayHandler,
		reporter:     reporter,
	}
}

func (rt *Router) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc(client.RelayPath, rt.relayHandler.HandleStream)

	mux.HandleFunc("/health", rt.reporter.HandleHealth)
	mux.HandleFunc("/health-plain", rt.reporter.HandleHealthPlain)
	mux.HandleFunc("/ping", rt.reporter.HandlePing)
	mux.HandleFunc("/ffmpeg-check", rt.reporter.HandleFFmpegCheck)

	mux.Handle("/metrics", promhttp.Handler())
}
