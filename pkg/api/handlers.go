package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

const maxRequestBytes = 1 << 20

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.service.Health())
}

// handleMetrics handles GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.service.Metrics())
}

// handlePredict handles POST /predict. A body that does not match the record schema is
// rejected with 422 before the model is called. Inference failures are reported in
// the body of a 200 response.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		writeErrorResponse(w, http.StatusUnprocessableEntity, "invalid request body: unexpected data after the JSON object")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result := s.service.Predict(req.Record())
	if !result.OK() {
		writeJSONResponse(w, http.StatusOK, result.Failure)
		return
	}
	writeJSONResponse(w, http.StatusOK, result.Response)
}

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes {"error": message} with the given status code
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}
