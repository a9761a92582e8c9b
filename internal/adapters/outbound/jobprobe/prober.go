package jobprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

const (
	// LastCallMetric is the gauge a job exports with the unix time of its last call.
	LastCallMetric = "job_last_call_timestamp"

	healthPath  = "/health"
	metricsPath = "/metrics"

	statusPass     = "pass"
	defaultTimeout = 10 * time.Second
)

type healthResponse struct {
	Status              string `json:"status"`
	DeploymentTimestamp int64  `json:"deployment_timestamp"`
}

// Prober calls the health and metrics endpoints of running jobs.
type Prober struct {
	client *http.Client
}

// New creates a prober. A nil client gets one with a ten second timeout.
func New(client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Prober{client: client}
}

func (p *Prober) get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		return nil, fmt.Errorf("call %s: %w: %s", url, ErrUnexpectedStatus, resp.Status)
	}

	return resp, nil
}

// Health reads the health endpoint of the job at baseURL.
func (p *Prober) Health(ctx context.Context, baseURL string, header http.Header) (job.Health, error) {
	resp, err := p.get(ctx, baseURL+healthPath, header)
	if err != nil {
		return job.Health{}, err
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return job.Health{}, fmt.Errorf("decode health response: %w", err)
	}

	return job.Health{
		Operational:         health.Status == statusPass,
		DeploymentTimestamp: health.DeploymentTimestamp,
	}, nil
}

// LastCallTime scrapes the job metrics and returns the time of its last call,
// or nil when the job has not been called yet.
func (p *Prober) LastCallTime(ctx context.Context, baseURL string, header http.Header) (*time.Time, error) {
	resp, err := p.get(ctx, baseURL+metricsPath, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)

	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse job metrics: %w", err)
	}

	family, ok := families[LastCallMetric]
	if !ok || len(family.GetMetric()) == 0 {
		return nil, nil
	}

	seconds := latestValue(family)
	if seconds <= 0 {
		return nil, nil
	}

	whole, frac := math.Modf(seconds)
	last := time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()

	return &last, nil
}

func latestValue(family *dto.MetricFamily) float64 {
	var latest float64

	for _, metric := range family.GetMetric() {
		value := metric.GetGauge().GetValue()
		if family.GetType() == dto.MetricType_UNTYPED {
			value = metric.GetUntyped().GetValue()
		}

		latest = max(latest, value)
	}

	return latest
}
