package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/metrics"
)

// CloudConfig wires the cloud provider.
type CloudConfig struct {
	Remote      domain.Embedder
	RemoteModel string
	// Local is the fallback model; nil disables the fallback path.
	Local     domain.Embedder
	LocalName string
	Dimension int
	Logger    *zap.Logger
}

// Cloud calls the remote endpoint. Its strict methods never substitute the local
// model; EmbedWithFallback and EmbedBatchWithFallback do, and report the path used.
type Cloud struct {
	remote      domain.Embedder
	remoteModel string
	local       domain.Embedder
	localName   string
	dim         int
	logger      *zap.Logger

	fallbacks atomic.Int64

	mu            sync.Mutex
	lastPath      Path
	lastRemoteErr string
	lastRemoteAt  time.Time
}

// NewCloud creates the cloud provider. The remote and local models must share the dimension.
func NewCloud(cfg CloudConfig) (*Cloud, error) {
	if cfg.Remote == nil {
		return nil, errors.New("cloud provider: remote embedder is required")
	}
	if cfg.Local != nil {
		if d, ok := cfg.Local.(dimensioned); ok && d.Dimension() != cfg.Dimension {
			return nil, fmt.Errorf("cloud fallback model %s: %w: got %d, want %d",
				cfg.LocalName, domain.ErrDimensionMismatch, d.Dimension(), cfg.Dimension)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cloud{
		remote:      cfg.Remote,
		remoteModel: cfg.RemoteModel,
		local:       cfg.Local,
		localName:   cfg.LocalName,
		dim:         cfg.Dimension,
		logger:      logger,
	}, nil
}

// Mode implements Provider.
func (c *Cloud) Mode() mode.Mode { return mode.Cloud }

// Dimension implements Provider.
func (c *Cloud) Dimension() int { return c.dim }

// Embed implements Provider. Failures are ErrEmbeddingUnavailable with the raw upstream error.
func (c *Cloud) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := embedOne(ctx, c.remote, text, c.dim)
	if err != nil {
		c.recordRemoteFailure(err)
		return nil, classify(err)
	}
	c.recordPath(PathRemote)
	return vec, nil
}

// EmbedBatch implements Provider.
func (c *Cloud) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := embedMany(ctx, c.remote, texts, c.dim)
	if err != nil {
		c.recordRemoteFailure(err)
		return nil, classify(err)
	}
	c.recordPath(PathRemote)
	return vecs, nil
}

// EmbedWithFallback implements FallbackEmbedder.
func (c *Cloud) EmbedWithFallback(ctx context.Context, text string) ([]float32, Path, error) {
	vecs, path, err := c.EmbedBatchWithFallback(ctx, []string{text})
	if err != nil {
		return nil, path, err
	}
	return vecs[0], path, nil
}

// EmbedBatchWithFallback implements FallbackEmbedder. A dimension mismatch from the
// remote is returned as is; it means the deployment is misconfigured.
func (c *Cloud) EmbedBatchWithFallback(ctx context.Context, texts []string) ([][]float32, Path, error) {
	if len(texts) == 0 {
		return nil, PathRemote, nil
	}

	vecs, remoteErr := c.EmbedBatch(ctx, texts)
	if remoteErr == nil {
		return vecs, PathRemote, nil
	}
	if c.local == nil || isFatal(remoteErr) || ctx.Err() != nil {
		return nil, PathRemote, remoteErr
	}

	vecs, err := embedMany(ctx, c.local, texts, c.dim)
	if err != nil {
		return nil, PathLocalFallback, fmt.Errorf("%w; local fallback: %w", remoteErr, classify(err))
	}

	c.fallbacks.Add(1)
	c.recordPath(PathLocalFallback)
	c.logger.Warn("Remote embedding failed, used local model",
		zap.String("remote_model", c.remoteModel),
		zap.String("local_model", c.localName),
		zap.Int("batch_size", len(texts)),
		zap.Error(remoteErr),
	)
	return vecs, PathLocalFallback, nil
}

// Fallbacks returns how many calls were served by the local model.
func (c *Cloud) Fallbacks() int64 { return c.fallbacks.Load() }

// Probe implements Provider. It sends a real embedding request upstream.
func (c *Cloud) Probe(ctx context.Context) health.Component {
	started := time.Now()
	details := map[string]string{
		"mode":         string(mode.Cloud),
		"remote_model": c.remoteModel,
		"dimension":    itoa(c.dim),
		"fallbacks":    strconv.FormatInt(c.fallbacks.Load(), 10),
	}

	c.mu.Lock()
	if c.lastPath != "" {
		details["last_path"] = string(c.lastPath)
	}
	if c.lastRemoteErr != "" {
		details["last_remote_error"] = c.lastRemoteErr
		details["last_remote_error_at"] = c.lastRemoteAt.UTC().Format(time.RFC3339)
	}
	c.mu.Unlock()

	remoteErr := checkModel(ctx, c.remote, c.dim)
	if remoteErr == nil {
		details["remote_status"] = "ok"
		details["local_fallback"] = c.localState(ctx, details)
		return newComponent(health.Healthy, started, details)
	}

	details["remote_status"] = "error"
	details["remote_error"] = remoteErr.Error()

	if c.local == nil {
		details["local_fallback"] = "not_configured"
		return newComponent(health.Unavailable, started, details)
	}
	if state := c.localState(ctx, details); state != "available" {
		details["local_fallback"] = state
		return newComponent(health.Unavailable, started, details)
	}
	details["local_fallback"] = "available"
	return newComponent(health.Degraded, started, details)
}

func (c *Cloud) localState(ctx context.Context, details map[string]string) string {
	if c.local == nil {
		return "not_configured"
	}
	if err := checkModel(ctx, c.local, c.dim); err != nil {
		details["local_error"] = err.Error()
		return "unavailable"
	}
	return "available"
}

func (c *Cloud) recordPath(p Path) {
	metrics.EmbeddingPathTotal.WithLabelValues(string(p)).Inc()
	c.mu.Lock()
	c.lastPath = p
	c.mu.Unlock()
}

func (c *Cloud) recordRemoteFailure(err error) {
	c.mu.Lock()
	c.lastRemoteErr = err.Error()
	c.lastRemoteAt = time.Now()
	c.mu.Unlock()
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, domain.ErrEmbeddingMalformedInput)
}
