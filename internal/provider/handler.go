package provider

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"

	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/store"
)

// NewHandler serves the scraps of s over HTTP. GET /scraps/{hash} answers
// with an Envelope. When gatherer is not nil its metrics are served on
// /metrics.
func NewHandler(s *store.ObjectStore, gatherer prometheus.Gatherer) http.Handler {
	log := commonlog.GetLogger("scrap.provider")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /scraps/{hash}", func(w http.ResponseWriter, r *http.Request) {
		h, err := hash.Parse(r.PathValue("hash"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, ok, err := s.Data(h)
		if err != nil {
			log.Errorf("lookup %s: %v", h, err)
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		body, err := MarshalEnvelope(&Envelope{Hash: h, Term: data})
		if err != nil {
			log.Errorf("encode %s: %v", h, err)
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		log.Debugf("serving %s", h)
		w.Header().Set("Content-Type", "application/cbor")
		w.Write(body)
	})

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
