package service

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/node"
	"github.com/treecast/treecast/src/peers"
)

// Service exposes a node's state and publish operation over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	registry    *prometheus.Registry
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, registry *prometheus.Registry, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		registry:    registry,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when treecast is used
// in-memory and expecpted to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering treecast API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	http.HandleFunc("/passives", s.makeHandler(s.GetPassives))
	http.HandleFunc("/publish", s.makeHandler(s.Publish))
	if s.registry != nil {
		http.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when treecast is used in-memory and another server has already
// been started with the DefaultServerMux and the same address:port
// combination. Indeed, treecast API handlers have already been registered
// when the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving treecast API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns a snapshot of the node's protocol state.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPeers returns the active view.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	returnPeers(w, r, s.node.ActivePeers())
}

// GetPassives returns the passive view.
func (s *Service) GetPassives(w http.ResponseWriter, r *http.Request) {
	returnPeers(w, r, s.node.PassivePeers())
}

// Publish broadcasts the request body to the cluster and returns the assigned
// message id.
func (s *Service) Publish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.WithError(err).Error("Reading publish body")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id, err := s.node.Publish(payload)
	if err != nil {
		s.logger.WithError(err).Error("Publishing message")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(id)
}

func returnPeers(w http.ResponseWriter, r *http.Request, ps []peers.Peer) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	encoder.Encode(ps)
}
