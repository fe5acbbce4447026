// Package recaptcha verifies reCAPTCHA v3 tokens server side.
package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result is the outcome of one verification. Reason is set when OK is false.
type Result struct {
	OK     bool
	Score  float64
	Action string
	Reason string
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

type Verifier struct {
	secret    string
	verifyURL string
	action    string
	minScore  float64
	http      *http.Client
}

func NewVerifier(secret, verifyURL, action string, minScore float64, timeout time.Duration) *Verifier {
	return &Verifier{
		secret:    secret,
		verifyURL: verifyURL,
		action:    action,
		minScore:  minScore,
		http:      &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a secret key is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify checks token against Google. Transport failures are returned as
// errors; a rejected token is a Result with OK false.
func (v *Verifier) Verify(ctx context.Context, token string) (Result, error) {
	if token == "" || v.secret == "" {
		return Result{Reason: "token_or_secret_missing"}, nil
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("recaptcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("recaptcha: verify: %w", err)
	}
	defer resp.Body.Close()

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("recaptcha: decode response: %w", err)
	}

	if !body.Success {
		reason := "verification_failed"
		if len(body.ErrorCodes) > 0 {
			reason = body.ErrorCodes[0]
		}
		return Result{Reason: reason}, nil
	}
	if v.action != "" && body.Action != v.action {
		return Result{Action: body.Action, Reason: "action_mismatch"}, nil
	}

	var score float64
	if body.Score != nil {
		score = *body.Score
	}
	if score < v.minScore {
		return Result{Score: score, Action: body.Action, Reason: "score_too_low"}, nil
	}
	return Result{OK: true, Score: score, Action: body.Action}, nil
}
