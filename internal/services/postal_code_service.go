package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
)

const (
	defaultPostalCodeBaseURL     = "https://viacep.com.br/ws"
	defaultPostalCodeAttempts    = 2
	defaultPostalCodeBackoffStep = 300 * time.Millisecond
	defaultPostalCodeTimeout     = 5 * time.Second
	maxPostalCodeBodyBytes       = 16 * 1024
)

// PostalCodeServiceDeps configures the CEP lookup client.
type PostalCodeServiceDeps struct {
	BaseURL     string
	HTTPClient  *http.Client
	Attempts    int
	BackoffStep time.Duration
	Timeout     time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type postalCodeService struct {
	baseURL     string
	client      *http.Client
	attempts    int
	backoffStep time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      func(ctx context.Context, event string, fields map[string]any)
}

type viaCEPResponse struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	Erro        any    `json:"erro"`
}

// NewPostalCodeService constructs the CEP lookup service applying defaults.
func NewPostalCodeService(deps PostalCodeServiceDeps) (PostalCodeService, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPostalCodeBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("postal code service: base url %q must be http(s)", baseURL)
	}

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultPostalCodeTimeout
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = defaultPostalCodeAttempts
	}
	step := deps.BackoffStep
	if step <= 0 {
		step = defaultPostalCodeBackoffStep
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &postalCodeService{
		baseURL:     baseURL,
		client:      client,
		attempts:    attempts,
		backoffStep: step,
		sleep:       sleep,
		logger:      logger,
	}, nil
}

// NormalizePostalCode accepts "12345-678" or "12345678" and returns the eight digits.
func NormalizePostalCode(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if len(value) == 9 && value[5] == '-' {
		value = value[:5] + value[6:]
	}
	if len(value) != 8 {
		return "", ErrInvalidPostalCode
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", ErrInvalidPostalCode
		}
	}
	return value, nil
}

func (s *postalCodeService) Lookup(ctx context.Context, postalCode string) (domain.PostalAddress, error) {
	cep, err := NormalizePostalCode(postalCode)
	if err != nil {
		return domain.PostalAddress{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		address, err := s.fetch(ctx, cep)
		if err == nil {
			return address, nil
		}
		if errors.Is(err, ErrPostalCodeNotFound) {
			return domain.PostalAddress{}, err
		}
		lastErr = err
		s.logger(ctx, "postal_code.lookup_failed", map[string]any{
			"postalCode": cep,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		if attempt == s.attempts {
			break
		}
		if err := s.sleep(ctx, time.Duration(attempt)*s.backoffStep); err != nil {
			return domain.PostalAddress{}, fmt.Errorf("%w: %v", ErrPostalCodeUnavailable, err)
		}
	}
	return domain.PostalAddress{}, fmt.Errorf("%w: %v", ErrPostalCodeUnavailable, lastErr)
}

func (s *postalCodeService) fetch(ctx context.Context, cep string) (domain.PostalAddress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+cep+"/json/", nil)
	if err != nil {
		return domain.PostalAddress{}, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return domain.PostalAddress{}, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return domain.PostalAddress{}, ErrPostalCodeNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxPostalCodeBodyBytes))
		return domain.PostalAddress{}, fmt.Errorf("lookup returned status %d", res.StatusCode)
	}

	var payload viaCEPResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxPostalCodeBodyBytes)).Decode(&payload); err != nil {
		return domain.PostalAddress{}, fmt.Errorf("decode lookup response: %w", err)
	}
	if lookupFlaggedError(payload.Erro) {
		return domain.PostalAddress{}, ErrPostalCodeNotFound
	}

	return domain.PostalAddress{
		PostalCode:   formatPostalCode(cep),
		Street:       strings.TrimSpace(payload.Logradouro),
		Complement:   strings.TrimSpace(payload.Complemento),
		Neighborhood: strings.TrimSpace(payload.Bairro),
		City:         strings.TrimSpace(payload.Localidade),
		State:        strings.ToUpper(strings.TrimSpace(payload.UF)),
	}, nil
}

// lookupFlaggedError accepts both the boolean and the string form of the "erro" flag.
func lookupFlaggedError(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func formatPostalCode(cep string) string {
	return cep[:5] + "-" + cep[5:]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
