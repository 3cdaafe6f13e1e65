// Package counter implements the visitor counter: a DynamoDB-backed store and
// the service that turns its results into responses.
package counter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/metrics"
	apperrors "github.com/sitewatch/visitorfn/pkg/errors"
	"github.com/sitewatch/visitorfn/pkg/health"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// ResourceName names the counter table in 404 responses.
const ResourceName = "Visitor counter table"

// Store is the persistence contract of the counter service.
type Store interface {
	Get(ctx context.Context) (int64, error)
	Increment(ctx context.Context) (int64, error)
	InitializeIfAbsent(ctx context.Context) error
	Ping(ctx context.Context) error
	TableInfo(ctx context.Context) TableInfo
	TableName() string
}

// Service translates store results into responses.
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	mu         sync.Mutex
	lastUpdate *time.Time
}

// NewService creates a counter service over store.
func NewService(store Store, logger *zap.Logger, recorder *metrics.Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

// GetCount returns the current count. A missing table is not an error here:
// it reads as a fresh counter.
func (s *Service) GetCount(ctx context.Context) response.Response {
	count, err := s.store.Get(ctx)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeResourceNotFound {
			return response.Success(response.Body{"count": InitialValue},
				"Counter initialized with default value")
		}
		return s.failure(err, "get count")
	}

	s.metrics.SetCounterValue(count)
	return response.Success(response.Body{"count": count}, "Visitor count retrieved successfully")
}

// IncrementCount adds one visit. Unlike GetCount, a missing table is
// reported as 404.
func (s *Service) IncrementCount(ctx context.Context) response.Response {
	count, err := s.store.Increment(ctx)
	if err != nil {
		return s.failure(err, "increment count")
	}

	s.markUpdated()
	s.metrics.SetCounterValue(count)
	return response.Success(response.Body{"count": count}, "Visitor count updated successfully")
}

// Initialize creates the counter record if it does not exist yet. Any
// failure, a missing table included, is the generic 500.
func (s *Service) Initialize(ctx context.Context) response.Response {
	if err := s.store.InitializeIfAbsent(ctx); err != nil {
		s.logger.Error("initialize counter failed",
			zap.String("code", string(apperrors.CodeOf(err))), zap.Error(err))
		return response.InternalServerError()
	}
	return response.Success(response.Body{"initialized": true}, "Visitor counter initialized successfully")
}

// Health probes the table and reports 200 when reachable, 503 otherwise.
func (s *Service) Health(ctx context.Context) response.Response {
	state := health.StateHealthy
	database := response.Body{
		"status":     health.StateHealthy,
		"table":      s.store.TableName(),
		"connection": "active",
	}

	if err := s.store.Ping(ctx); err != nil {
		state = health.StateUnhealthy
		database = response.Body{
			"status":     health.StateUnhealthy,
			"table":      s.store.TableName(),
			"connection": "failed",
			"error":      string(apperrors.CodeOf(err)),
		}
		if e, ok := apperrors.As(err); ok && e.BackendCode != "" {
			database["error"] = e.BackendCode
		}
	}

	return response.Create(state.HTTPStatus(), response.Body{
		"service":  "visitor-counter",
		"status":   state,
		"database": database,
		"table":    s.store.TableInfo(ctx),
	})
}

// Analytics reports the current count, the table status and the time of the
// last increment seen by this process.
func (s *Service) Analytics(ctx context.Context) response.Response {
	count, err := s.store.Get(ctx)
	if err != nil {
		return s.failure(err, "analytics")
	}
	info := s.store.TableInfo(ctx)

	s.mu.Lock()
	var lastUpdate interface{}
	if s.lastUpdate != nil {
		lastUpdate = *s.lastUpdate
	}
	s.mu.Unlock()

	return response.Success(response.Body{
		"currentCount": count,
		"tableStatus":  info.Status,
		"lastUpdate":   lastUpdate,
	}, "Analytics data retrieved successfully")
}

func (s *Service) markUpdated() {
	now := s.now().UTC()
	s.mu.Lock()
	s.lastUpdate = &now
	s.mu.Unlock()
}

func (s *Service) failure(err error, action string) response.Response {
	code := apperrors.CodeOf(err)
	if code == apperrors.ErrCodeUnexpected {
		s.logger.Error(action+" failed", zap.Error(err))
	} else {
		s.logger.Warn(action+" failed", zap.String("code", string(code)), zap.Error(err))
	}
	return response.FromError(err, ResourceName, response.BackendDatabase)
}
