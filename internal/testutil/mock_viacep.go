// Package testutil provides testing utilities for the CEP pipeline.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior of a mock ViaCEP endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockViaCEP is a configurable mock ViaCEP server for testing.
type MockViaCEP struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount  int
	requestsByCEP map[string]int
	requestTimes  []time.Time
}

// NewMockViaCEP creates a new mock ViaCEP server. CEPs without a
// configured response get the default synthetic address.
func NewMockViaCEP() *MockViaCEP {
	mock := &MockViaCEP{
		handlers:      make(map[string]func(w http.ResponseWriter, r *http.Request)),
		requestsByCEP: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.requestTimes = append(mock.requestTimes, time.Now())
		if cep := cepFromPath(r.URL.Path); cep != "" {
			mock.requestsByCEP[cep]++
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockViaCEP) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockViaCEP) Close() {
	m.server.Close()
}

// SetResponse configures the response for one CEP.
func (m *MockViaCEP) SetResponse(cep string, resp MockResponse) {
	path := fmt.Sprintf("/ws/%s/json/", cep)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// SetResponseSequence configures per-CEP responses served in order;
// the last response repeats once the sequence is exhausted.
func (m *MockViaCEP) SetResponseSequence(cep string, responses []MockResponse) {
	path := fmt.Sprintf("/ws/%s/json/", cep)
	var seqMu sync.Mutex
	served := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		seqMu.Lock()
		idx := served
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		served++
		seqMu.Unlock()

		resp := responses[idx]
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// RequestCount returns the total number of requests served.
func (m *MockViaCEP) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestCountFor returns how many requests one CEP received.
func (m *MockViaCEP) RequestCountFor(cep string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsByCEP[cep]
}

// RequestTimes returns a copy of the arrival timestamps of every
// request, for rate-ceiling assertions.
func (m *MockViaCEP) RequestTimes() []time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	times := make([]time.Time, len(m.requestTimes))
	copy(times, m.requestTimes)
	return times
}

// defaultHandler serves a synthetic address for any CEP.
func (m *MockViaCEP) defaultHandler(w http.ResponseWriter, r *http.Request) {
	cep := cepFromPath(r.URL.Path)
	if len(cep) != 8 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"cep": %q, "logradouro": "Praça da Sé", "bairro": "Sé", "localidade": "São Paulo", "uf": "SP"}`,
		cep[:5]+"-"+cep[5:])
}

// cepFromPath extracts the CEP from /ws/{cep}/json/.
func cepFromPath(path string) string {
	const prefix = "/ws/"
	const suffix = "/json/"
	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	return path[len(prefix) : len(path)-len(suffix)]
}

// NewAddressResponse creates a 200 response with a full address body.
func NewAddressResponse(cep string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(`{
			"cep": %q,
			"logradouro": "Praça da Sé",
			"complemento": "lado ímpar",
			"unidade": "",
			"bairro": "Sé",
			"localidade": "São Paulo",
			"uf": "SP",
			"estado": "São Paulo",
			"regiao": "Sudeste",
			"ibge": "3550308",
			"gia": "1004",
			"ddd": "11",
			"siafi": "7107"
		}`, cep[:5]+"-"+cep[5:]),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates the {"erro": true} body ViaCEP returns
// for a CEP that does not exist.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"erro": true}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewMalformedResponse creates a 200 response with an unparseable body.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"cep": "01001-000", "logradouro":`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
