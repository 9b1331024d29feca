package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

// HTTP posts batches to a remote translation service speaking a small JSON
// protocol: POST {base}/translate with texts and language pair, one result
// per text in input order.
type HTTP struct {
	name    string
	baseURL string
	apiKey  string
	http    *resty.Client
}

func NewHTTP(name, baseURL, apiKey string, timeout time.Duration) (*HTTP, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, &domain.ConfigurationError{Reason: "http engine requires a base URL"}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTP{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    resty.New().SetTimeout(timeout),
	}, nil
}

func (h *HTTP) Name() string { return h.name }

type httpBatchRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type httpBatchResponse struct {
	Results []struct {
		Text  string `json:"text"`
		Error *struct {
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	} `json:"results"`
}

func (h *HTTP) TranslateBatch(ctx context.Context, texts []string, srcLang, tgtLang string) ([]ports.EngineResult, error) {
	var resp httpBatchResponse
	req := h.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(httpBatchRequest{Texts: texts, SourceLang: srcLang, TargetLang: tgtLang}).
		SetResult(&resp)
	if h.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+h.apiKey)
	}
	r, err := req.Post(h.baseURL + "/translate")
	if err != nil {
		return nil, err
	}
	if r.IsError() {
		// 5xx is worth retrying; anything else is a protocol-level failure
		// for the whole batch.
		retryable := r.StatusCode() >= 500
		out := make([]ports.EngineResult, len(texts))
		for i := range out {
			out[i] = ports.EngineResult{Err: &ports.EngineError{
				Message:   fmt.Sprintf("engine %s: %s", h.name, r.Status()),
				Retryable: retryable,
			}}
		}
		return out, nil
	}
	if len(resp.Results) != len(texts) {
		return nil, fmt.Errorf("engine %s: got %d results for %d texts", h.name, len(resp.Results), len(texts))
	}
	out := make([]ports.EngineResult, len(texts))
	for i, res := range resp.Results {
		if res.Error != nil {
			out[i] = ports.EngineResult{Err: &ports.EngineError{Message: res.Error.Message, Retryable: res.Error.Retryable}}
			continue
		}
		out[i] = ports.EngineResult{Text: res.Text}
	}
	return out, nil
}
