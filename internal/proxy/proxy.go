// Package proxy implements the same-origin gateway that fronts the
// assistant backend.
//
// The gateway is stateless: it receives a multipart request tagged with a
// logical endpoint name, resolves the endpoint to a backend base URL,
// forwards the body unchanged, and content-negotiates the response —
// structured JSON is decoded and re-emitted verbatim, anything else is
// treated as an opaque audio payload. Backend failures are normalized into
// a uniform {"error": ...} envelope that preserves the backend status code.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tlahtolli/internal/config"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// maxBodyBytes bounds forwarded request and response bodies.
const maxBodyBytes = 50 << 20

// errorBodyLimit bounds how much of a backend error body is echoed back.
const errorBodyLimit = 4096

// Server is the gateway HTTP server.
type Server struct {
	port    int
	backend config.BackendConfig
	client  *http.Client
	server  *http.Server
}

// New creates a gateway server on the given port, routing requests per the
// backend configuration.
func New(port int, backend config.BackendConfig) *Server {
	return &Server{
		port:    port,
		backend: backend,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Handler returns the gateway's routing handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /proxy", s.handleForward)
	mux.HandleFunc("OPTIONS /proxy", s.handlePreflight)

	// Swagger UI — serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// ListenAndServe starts the gateway and blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway listening", "port", s.port)

	go func() {
		<-ctx.Done()
		slog.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the gateway.
func (s *Server) Close() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleForward proxies a multipart request to the backend.
//
// @Summary     Forward a request to the assistant backend
// @Description Forwards the multipart body unchanged to the backend service named by the
// @Description endpoint query parameter (transcribe, chat-response, tts, ocr, upload-pdf, query).
// @Description JSON backend responses are passed through verbatim; any other success body is
// @Description returned as binary audio with an explicit Content-Length.
// @Tags        proxy
// @Accept      multipart/form-data
// @Produce     json
// @Produce     audio/mpeg
// @Param       endpoint  query     string  true  "Logical backend endpoint name"
// @Success     200  {object}  map[string]any  "Backend JSON response (or binary audio)"
// @Failure     400  {object}  map[string]string  "Missing endpoint parameter"
// @Failure     500  {object}  map[string]string  "Backend unreachable"
// @Router      /proxy [post]
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	allowOrigin(w)

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint parameter required")
		return
	}

	apiURL := s.backend.Resolve(endpoint) + "/" + endpoint
	logger := slog.With("endpoint", endpoint, "url", apiURL)
	logger.Debug("forwarding request")

	req, err := http.NewRequestWithContext(r.Context(), r.Method, apiURL,
		io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("building backend request: %v", err))
		return
	}
	// The multipart boundary lives in the Content-Type header; it must
	// survive the hop untouched.
	req.Header.Set("Content-Type", r.Header.Get("Content-Type"))

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("backend unreachable", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to connect to API: %v", err))
		return
	}
	defer resp.Body.Close()

	logger.Debug("backend responded", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		writeError(w, resp.StatusCode, fmt.Sprintf("API error: %d %s - %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), body))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if isJSON(contentType) {
		var payload any
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("decoding backend response: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	// Opaque audio payload (the tts endpoint).
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("reading backend response: %v", err))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// handlePreflight answers CORS pre-flight negotiation.
//
// @Summary     CORS pre-flight
// @Description Advertises the allowed method and headers so a browser client hosted elsewhere can call the gateway.
// @Tags        proxy
// @Success     200
// @Router      /proxy [options]
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	allowOrigin(w)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusOK)
}

func allowOrigin(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
