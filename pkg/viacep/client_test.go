package viacep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cep-pipeline/internal/testutil"
)

// openAdmitter admits every request immediately and counts acquisitions.
type openAdmitter struct {
	acquired atomic.Int64
}

func (a *openAdmitter) Acquire(ctx context.Context) (time.Time, error) {
	a.acquired.Add(1)
	return time.Now(), nil
}

func newTestClient(t *testing.T, baseURL string, maxAttempts int) (*Client, *openAdmitter) {
	t.Helper()

	admitter := &openAdmitter{}
	client, err := New(Config{
		Governor:          admitter,
		BaseURL:           baseURL,
		UserAgent:         "cep-pipeline-test/1.0",
		MaxAttempts:       maxAttempts,
		BaseBackoff:       10 * time.Millisecond,
		PerRequestTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, admitter
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: Config{
				Governor:          &openAdmitter{},
				BaseURL:           "https://viacep.com.br",
				MaxAttempts:       3,
				PerRequestTimeout: 10 * time.Second,
			},
			expectError: false,
		},
		{
			name: "nil governor",
			config: Config{
				BaseURL:           "https://viacep.com.br",
				MaxAttempts:       3,
				PerRequestTimeout: 10 * time.Second,
			},
			expectError: true,
			errorMsg:    "rate governor is required",
		},
		{
			name: "empty base URL",
			config: Config{
				Governor:          &openAdmitter{},
				MaxAttempts:       3,
				PerRequestTimeout: 10 * time.Second,
			},
			expectError: true,
			errorMsg:    "base URL is required",
		},
		{
			name: "zero max attempts",
			config: Config{
				Governor:          &openAdmitter{},
				BaseURL:           "https://viacep.com.br",
				PerRequestTimeout: 10 * time.Second,
			},
			expectError: true,
			errorMsg:    "max attempts must be >= 1 (got 0)",
		},
		{
			name: "missing timeout",
			config: Config{
				Governor:    &openAdmitter{},
				BaseURL:     "https://viacep.com.br",
				MaxAttempts: 3,
			},
			expectError: true,
			errorMsg:    "per-request timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestNormalizeCEP(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		valid bool
	}{
		{"plain digits", "01001000", "01001000", true},
		{"hyphenated", "01001-000", "01001000", true},
		{"dotted", "01.001-000", "01001000", true},
		{"surrounding whitespace", " 01001000 ", "01001000", true},
		{"too short", "0100100", "", false},
		{"too long", "010010001", "", false},
		{"letters", "0100100a", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := NormalizeCEP(tt.raw)
			if valid != tt.valid {
				t.Fatalf("NormalizeCEP(%q) valid = %v, want %v", tt.raw, valid, tt.valid)
			}
			if got != tt.want {
				t.Errorf("NormalizeCEP(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFetch_Success(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()
	mock.SetResponse("01001000", testutil.NewAddressResponse("01001000"))

	client, _ := newTestClient(t, mock.URL(), 3)

	outcome := client.Fetch(context.Background(), "01001-000")

	if outcome.Success == nil {
		t.Fatalf("Expected success, got failure: %+v", outcome.Failure)
	}
	if outcome.Success.CEP != "01001000" {
		t.Errorf("CEP = %q, want %q", outcome.Success.CEP, "01001000")
	}
	if outcome.Success.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", outcome.Success.Attempts)
	}

	// Fields must arrive exactly as sent, no normalization.
	if got := outcome.Success.Fields["cep"]; got != "01001-000" {
		t.Errorf("Raw cep field = %q, want %q", got, "01001-000")
	}
	if got := outcome.Success.Fields["logradouro"]; got != "Praça da Sé" {
		t.Errorf("logradouro = %q, want %q", got, "Praça da Sé")
	}
}

func TestFetch_NotFoundNoRetry(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()
	mock.SetResponse("99999999", testutil.NewNotFoundResponse())

	client, admitter := newTestClient(t, mock.URL(), 3)

	outcome := client.Fetch(context.Background(), "99999999")

	if outcome.Failure == nil {
		t.Fatal("Expected failure, got success")
	}
	if outcome.Failure.Category != CategoryNotFound {
		t.Errorf("Category = %q, want %q", outcome.Failure.Category, CategoryNotFound)
	}
	if outcome.Failure.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (no retry on NotFound)", outcome.Failure.Attempts)
	}
	if count := mock.RequestCountFor("99999999"); count != 1 {
		t.Errorf("Server saw %d requests, want 1", count)
	}
	if got := admitter.acquired.Load(); got != 1 {
		t.Errorf("Rate slots acquired = %d, want 1", got)
	}
	if outcome.Failure.Timestamp.IsZero() {
		t.Error("Failure timestamp should be set")
	}
}

func TestFetch_MalformedPayloadNoRetry(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()
	mock.SetResponse("01001000", testutil.NewMalformedResponse())

	client, _ := newTestClient(t, mock.URL(), 3)

	outcome := client.Fetch(context.Background(), "01001000")

	if outcome.Failure == nil {
		t.Fatal("Expected failure, got success")
	}
	if outcome.Failure.Category != CategoryInvalidResponse {
		t.Errorf("Category = %q, want %q", outcome.Failure.Category, CategoryInvalidResponse)
	}
	if count := mock.RequestCountFor("01001000"); count != 1 {
		t.Errorf("Server saw %d requests, want 1", count)
	}
}

func TestFetch_MalformedKeyRejectedLocally(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()

	client, admitter := newTestClient(t, mock.URL(), 3)

	outcome := client.Fetch(context.Background(), "abc")

	if outcome.Failure == nil {
		t.Fatal("Expected failure, got success")
	}
	if outcome.Failure.Category != CategoryInvalidKey {
		t.Errorf("Category = %q, want %q", outcome.Failure.Category, CategoryInvalidKey)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("Server saw %d requests, want 0", mock.RequestCount())
	}
	if got := admitter.acquired.Load(); got != 0 {
		t.Errorf("Rate slots acquired = %d, want 0", got)
	}
}

func TestFetch_RetryThenSuccess(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()
	mock.SetResponseSequence("01001000", []testutil.MockResponse{
		testutil.NewServerErrorResponse(),
		testutil.NewRateLimitResponse(),
		testutil.NewAddressResponse("01001000"),
	})

	client, admitter := newTestClient(t, mock.URL(), 3)

	outcome := client.Fetch(context.Background(), "01001000")

	if outcome.Success == nil {
		t.Fatalf("Expected success after retries, got failure: %+v", outcome.Failure)
	}
	if outcome.Success.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", outcome.Success.Attempts)
	}
	if count := mock.RequestCountFor("01001000"); count != 3 {
		t.Errorf("Server saw %d requests, want 3", count)
	}

	// Each retry re-acquires a rate slot.
	if got := admitter.acquired.Load(); got != 3 {
		t.Errorf("Rate slots acquired = %d, want 3", got)
	}
}

func TestFetch_ExhaustedRetries(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()
	mock.SetResponse("01001000", testutil.NewServerErrorResponse())

	client, _ := newTestClient(t, mock.URL(), 3)

	outcome := client.Fetch(context.Background(), "01001000")

	if outcome.Failure == nil {
		t.Fatal("Expected failure, got success")
	}
	if outcome.Failure.Category != CategoryExhaustedRetries {
		t.Errorf("Category = %q, want %q", outcome.Failure.Category, CategoryExhaustedRetries)
	}
	if outcome.Failure.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", outcome.Failure.Attempts)
	}
	if count := mock.RequestCountFor("01001000"); count != 3 {
		t.Errorf("Server saw %d requests, want 3", count)
	}
}

func TestFetch_TimeoutIsRetryable(t *testing.T) {
	mock := testutil.NewMockViaCEP()
	defer mock.Close()
	mock.SetResponseSequence("01001000", []testutil.MockResponse{
		{StatusCode: 200, Body: `{"erro": true}`, Delay: 300 * time.Millisecond},
		testutil.NewAddressResponse("01001000"),
	})

	admitter := &openAdmitter{}
	client, err := New(Config{
		Governor:          admitter,
		BaseURL:           mock.URL(),
		MaxAttempts:       2,
		BaseBackoff:       10 * time.Millisecond,
		PerRequestTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	outcome := client.Fetch(context.Background(), "01001000")

	if outcome.Success == nil {
		t.Fatalf("Expected success after timeout retry, got failure: %+v", outcome.Failure)
	}
	if outcome.Success.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", outcome.Success.Attempts)
	}
}
