package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/dsrph/registry_backend/config"
)

var psnPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}$`)

// VerificationResult is the narrow answer the pipeline needs from the
// national identity service.
type VerificationResult struct {
	Valid      bool              `json:"valid"`
	PersonInfo map[string]string `json:"person_info,omitempty"`
}

// PSNVerifier is the external identity-verification collaborator. The
// pipeline must tolerate it being unavailable; see Validator for the degraded
// mode.
type PSNVerifier interface {
	Verify(ctx context.Context, psn string) (VerificationResult, error)
}

// CachedPSNVerifier caches verification answers in Redis so repeated
// ingestion of the same identifier does not hammer the national service.
// Only definitive answers are cached; unavailable-service errors are not.
type CachedPSNVerifier struct {
	Next PSNVerifier
	TTL  time.Duration
}

func NewCachedPSNVerifier(next PSNVerifier) *CachedPSNVerifier {
	return &CachedPSNVerifier{Next: next, TTL: 24 * time.Hour}
}

func (v *CachedPSNVerifier) Verify(ctx context.Context, psn string) (VerificationResult, error) {
	key := "registry:psn-verify:" + psn
	var cached VerificationResult
	if found, err := config.GetRedisObject(key, &cached); err == nil && found {
		return cached, nil
	}

	result, err := v.Next.Verify(ctx, psn)
	if err != nil {
		return result, err
	}
	if err := config.SetRedisObject(key, result, v.TTL); err != nil {
		config.LogWarn(config.GetLogger(), "workflow", "Verify", "psn cache", err.Error())
	}
	return result, nil
}

// HTTPPSNVerifier calls the PhilSys verification endpoint.
type HTTPPSNVerifier struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPPSNVerifier(baseURL, apiKey string) *HTTPPSNVerifier {
	return &HTTPPSNVerifier{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPPSNVerifier) Verify(ctx context.Context, psn string) (VerificationResult, error) {
	if !psnPattern.MatchString(psn) {
		return VerificationResult{Valid: false}, nil
	}

	url := fmt.Sprintf("%s/verify/%s", v.BaseURL, psn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return VerificationResult{}, err
	}
	if v.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.APIKey)
	}

	resp, err := v.Client.Do(req)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return VerificationResult{}, fmt.Errorf("%w: status %d", ErrVerifierUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return VerificationResult{Valid: false}, nil
	}

	var result VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return VerificationResult{}, fmt.Errorf("%w: decode: %v", ErrVerifierUnavailable, err)
	}
	return result, nil
}
