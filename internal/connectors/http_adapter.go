package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/aigov-engine/internal/domain"
)

// HTTPAdapter — клиент внешнего скорер-сервиса (POST {base}/v1/score).
// Один адаптер на сервис; маппинг измерение->адаптер живет в Registry.
type HTTPAdapter struct {
	baseURL  string
	scorerID string
	client   *http.Client
}

func NewHTTPAdapter(baseURL, scorerID string, timeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL:  baseURL,
		scorerID: scorerID,
		client:   &http.Client{Timeout: timeout},
	}
}

type scoreResponse struct {
	Value       float64 `json:"value"`
	Confidence  float64 `json:"confidence"`
	EvidenceRef string  `json:"evidence_ref"`
	Error       string  `json:"error,omitempty"`
}

// Score реализует интерфейс Scorer.
func (a *HTTPAdapter) Score(ctx context.Context, req ScoreRequest) (domain.DimensionScore, error) {
	var zero domain.DimensionScore

	// 1. Сериализуем запрос
	body, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("scorer %s: marshal request: %w", a.scorerID, err)
	}

	// 2. Защитный таймаут на уровне вызова: даже если ретрай-обертка
	// имеет свой, адаптер должен иметь свой предел
	ctx, cancel := context.WithTimeout(ctx, a.client.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("scorer %s: build request: %w", a.scorerID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// 3. Выполняем вызов
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return zero, fmt.Errorf("scorer %s: call failed: %w", a.scorerID, err)
	}
	defer resp.Body.Close()

	// 4. Троттлинг транслируем в типизированную ошибку: ретрай-слой
	// уважает Retry-After вместо своего бэкоффа
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 1 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return zero, &ThrottleError{
			RetryAfter: retryAfter,
			Cause:      fmt.Errorf("scorer %s rate limited", a.scorerID),
		}
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, fmt.Errorf("scorer %s: unexpected status %d: %s", a.scorerID, resp.StatusCode, payload)
	}

	// 5. Разбираем ответ и проверяем статус внутри тела
	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("scorer %s: decode response: %w", a.scorerID, err)
	}
	if out.Error != "" {
		return zero, fmt.Errorf("scorer %s returned error: %s", a.scorerID, out.Error)
	}

	return domain.DimensionScore{
		Dimension:   req.Dimension,
		Value:       out.Value,
		Confidence:  out.Confidence,
		Source:      a.scorerID,
		EvidenceRef: out.EvidenceRef,
	}, nil
}
