package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	rmetrics "github.com/rcrowley/go-metrics"
)

// collector bridges the rcrowley Registry into Prometheus's pull model:
// each scrape walks the live rcrowley registry and emits one gauge per
// entry, so newly-registered metrics appear without touching this file.
type collector struct {
	registry *Registry
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	// Metric set is dynamic; Prometheus's client_golang accepts an
	// unchecked collector when Describe sends nothing.
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i interface{}) {
		fqName := "slotchain_" + sanitize(name)
		desc := prometheus.NewDesc(fqName, "slotchain internal metric "+name, nil, nil)
		switch m := i.(type) {
		case rmetrics.Gauge:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(m.Value()))
		case rmetrics.Counter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))
		case rmetrics.Timer:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Rate1())
		case rmetrics.Histogram:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Mean())
		}
	})
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", "-", "_").Replace(name)
}

// Server is the node's /healthz + /metrics HTTP endpoint, routed with
// julienschmidt/httprouter and wrapped with rs/cors the way the
// teacher's go.mod pulls in both for its RPC HTTP surface.
type Server struct {
	httpSrv *http.Server
}

// healthFunc reports node liveness (e.g. "is the chain tip advancing").
type healthFunc func() (ok bool, detail string)

// NewServer builds the metrics/health HTTP handler. addr is the listen
// address (e.g. "127.0.0.1:9100").
func NewServer(addr string, registry *Registry, health healthFunc) *Server {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(&collector{registry: registry})

	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ok, detail := health()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(detail))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	return &Server{httpSrv: &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}}
}

func (s *Server) ListenAndServe() error { return s.httpSrv.ListenAndServe() }

func (s *Server) Close() error { return s.httpSrv.Close() }
