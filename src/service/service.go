package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/mosaicnetworks/meshcast/src/node"
	"github.com/sirupsen/logrus"
)

const maxBodySize = 16 * 1024 * 1024

// Service exposes a node over HTTP. Requests go through the same dispatcher as
// the RPCs received by the node's transport.
type Service struct {
	bindAddress string
	node        *node.Node
	logger      *logrus.Entry

	mux    *http.ServeMux
	server *http.Server
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering meshcast API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(http.MethodGet, s.GetStats))
	s.mux.HandleFunc("/read", s.makeHandler(http.MethodGet, s.Read))
	s.mux.HandleFunc("/neighbors", s.makeHandler(http.MethodGet, s.GetNeighbors))
	s.mux.HandleFunc("/broadcast", s.makeHandler(http.MethodPost, s.requestHandler(net.KindBroadcast)))
	s.mux.HandleFunc("/topology", s.makeHandler(http.MethodPost, s.requestHandler(net.KindTopology)))
	s.mux.HandleFunc("/generate", s.makeHandler(http.MethodPost, s.requestHandler(net.KindGenerate)))
}

func (s *Service) makeHandler(method string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		fn(w, r)
	}
}

// Handler returns the handler serving the API, for use with another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call. It returns nil once
// Close has been called.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving meshcast API")

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		s.logger.Error(err)
	}
	return err
}

// Close stops the server.
func (s *Service) Close() error {
	return s.server.Close()
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetStats())
}

// GetNeighbors ...
func (s *Service) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetNeighbors())
}

// Read returns every value observed by the node.
func (s *Service) Read(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, &net.ReadRequest{})
}

// requestHandler decodes a body of the given kind and dispatches it.
func (s *Service) requestHandler(kind string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if len(body) == 0 {
			body = []byte("{}")
		}

		req, err := net.DecodeRequest(kind, body)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.dispatch(w, req)
	}
}

func (s *Service) dispatch(w http.ResponseWriter, req net.Request) {
	resp, err := s.node.Dispatch(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, responseBody(resp))
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, net.ErrMalformedRequest):
		status = http.StatusBadRequest
	case errors.Is(err, net.ErrUnhandled):
		status = http.StatusNotImplemented
	default:
		s.logger.WithError(err).Error("API request failed")
	}

	writeJSON(w, status, &net.ErrorBody{
		Code: net.ErrorCode(err),
		Text: err.Error(),
	})
}

// responseBody adds the response type to the fields of resp. Fields are kept
// as raw JSON so values are written back exactly as encoded.
func responseBody(resp net.Response) map[string]json.RawMessage {
	res := map[string]json.RawMessage{}

	raw, err := json.Marshal(resp)
	if err == nil {
		json.Unmarshal(raw, &res)
	}

	kind, _ := json.Marshal(resp.Type())
	res["type"] = kind
	return res
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
