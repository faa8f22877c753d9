package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/grading"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type dashboardRepository interface {
	Summary(ctx context.Context) (*models.DashboardSummary, error)
}

// DashboardService composes the admin overview and caches it briefly.
type DashboardService struct {
	repo   dashboardRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardService constructs the service. A nil cache disables caching.
func NewDashboardService(repo dashboardRepository, cacheSvc *CacheService, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DashboardService{repo: repo, cache: cacheSvc, ttl: ttl, logger: logger, now: time.Now}
}

// Summary returns the overview and whether it came from cache.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, bool, error) {
	var cached models.DashboardSummary
	if hit, err := s.cache.Get(ctx, cache.DashboardKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, false, appErrors.Store(err, "failed to build dashboard summary")
	}
	summary.GradeDistribution = fillDistribution(summary.GradeDistribution)
	summary.GeneratedAt = s.now().UTC()

	if err := s.cache.Set(ctx, cache.DashboardKey, summary, s.ttl); err != nil {
		s.logger.Debug("dashboard cache write skipped", zap.Error(err))
	}
	return summary, false, nil
}

// fillDistribution orders buckets best to worst and reports every letter, including empty ones.
func fillDistribution(counts []models.LetterCount) []models.LetterCount {
	byLetter := make(map[string]int, len(counts))
	for _, c := range counts {
		byLetter[c.Letter] += c.Count
	}
	letters := grading.Letters()
	out := make([]models.LetterCount, 0, len(letters))
	for _, letter := range letters {
		out = append(out, models.LetterCount{Letter: letter, Count: byLetter[letter]})
	}
	return out
}
