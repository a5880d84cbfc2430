package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/norasector/pktlink/pkg/dsp/viz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Producer reports a JSON-serializable snapshot of some component.
type Producer interface {
	Name() string
	Status() interface{}
}

type producerFunc struct {
	name string
	fn   func() interface{}
}

func (p producerFunc) Name() string        { return p.name }
func (p producerFunc) Status() interface{} { return p.fn() }

// ProducerFunc adapts a function to a Producer.
func ProducerFunc(name string, fn func() interface{}) Producer {
	return producerFunc{name: name, fn: fn}
}

// Server serves /status as JSON built from registered producers, /metrics from a
// prometheus registry, and PNG plots rendered on request.
type Server struct {
	mu          sync.RWMutex
	port        int
	srv         *http.Server
	registry    *prometheus.Registry
	producers   map[string]Producer
	plotBuckets map[string]map[string]viz.Producer
}

func NewServer(port int) *Server {
	s := &Server{
		port:        port,
		registry:    prometheus.NewRegistry(),
		producers:   make(map[string]Producer),
		plotBuckets: make(map[string]map[string]viz.Producer),
		srv:         &http.Server{Addr: fmt.Sprintf(":%d", port)},
	}
	s.srv.Handler = s.Handler()
	return s
}

// Registry is where components register their collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) Register(p Producer) {
	s.mu.Lock()
	s.producers[p.Name()] = p
	s.mu.Unlock()
}

// RegisterPlot implements viz.Registry.
func (s *Server) RegisterPlot(bucket string, p viz.Producer) {
	s.mu.Lock()
	b, ok := s.plotBuckets[bucket]
	if !ok {
		b = make(map[string]viz.Producer)
		s.plotBuckets[bucket] = b
	}
	b[p.Name()] = p
	s.mu.Unlock()
}

// Plots lists plot names per bucket, sorted.
func (s *Server) Plots() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make(map[string][]string, len(s.plotBuckets))
	for bucket, plots := range s.plotBuckets {
		names := make([]string, 0, len(plots))
		for name := range plots {
			names = append(names, name)
		}
		sort.Strings(names)
		ret[bucket] = names
	}
	return ret
}

// Snapshot collects every producer's status keyed by name.
func (s *Server) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make(map[string]interface{}, len(s.producers))
	for name, p := range s.producers {
		ret[name] = p.Status()
	}
	return ret
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()

	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Location", "/status")
		w.WriteHeader(http.StatusFound)
	})

	handler.GET("/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
			log.Warn().Err(err).Msg("error writing status")
		}
	})

	handler.GET("/status/:name", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		s.mu.RLock()
		p, ok := s.producers[params.ByName("name")]
		s.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Status()); err != nil {
			log.Warn().Err(err).Msg("error writing status")
		}
	})

	handler.GET("/producers", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.RLock()
		names := make([]string, 0, len(s.producers))
		for name := range s.producers {
			names = append(names, name)
		}
		s.mu.RUnlock()
		sort.Strings(names)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(names)
	})

	handler.GET("/plots", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Plots())
	})

	handler.GET("/view/:bucket", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")
		names, ok := s.Plots()[bucket]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Add("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>pktlink %s</title></head>`, bucket)
		w.Write([]byte(`<body style='background-color: black'><div style="display: flex; flex-direction: row; flex-wrap: wrap">`))
		for _, name := range names {
			fmt.Fprintf(w, `<div><img src="/plot/%s/%s" /></div>`, url.PathEscape(bucket), url.PathEscape(name))
		}
		w.Write([]byte(`</div></body></html>`))
	})

	handler.GET("/plot/:bucket/:name", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		s.mu.RLock()
		p, ok := s.plotBuckets[params.ByName("bucket")][params.ByName("name")]
		s.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		img, err := p.GetImage()
		switch {
		case errors.Is(err, viz.ErrNotEnoughData):
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		case err != nil:
			log.Warn().Err(err).Str("plot", p.Name()).Msg("error rendering plot")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "image/png")
		w.Write(img.Data())
	})

	handler.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return handler
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Run serves until ctx ends or Stop is called.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.srv.Shutdown(context.Background())
	}()

	log.Info().Int("port", s.port).Msg("status server starting")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
