package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

// EligibilityEvaluator decides whether a translator document satisfies an expression.
type EligibilityEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathEvaluator implements EligibilityEvaluator using go-jmespath.
type jmespathEvaluator struct{}

func (jmespathEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// TranslatorMatcherOptions groups dependencies for TranslatorMatcher.
type TranslatorMatcherOptions struct {
	Pool      *core.TranslatorPoolCache // Required: translator pool snapshot source
	Jobs      core.JobStore             // Required: for FindPotentialJobs
	Customers core.CustomerDirectory    // Optional: enables blocked-translator filtering
	// EligibilityExpr is an optional JMESPath expression evaluated against Translator.Document().
	// A translator is kept only when the result is truthy.
	EligibilityExpr string
	Evaluator       EligibilityEvaluator // Optional: defaults to go-jmespath
	StoreTimeout    time.Duration        // Optional: bound on pool and customer lookups (default 5s)
	Logger          *slog.Logger
}

// TranslatorMatcher computes candidate sets. Given the same pool snapshot and job it always
// returns the same sorted set, so retries of an offer are safe to repeat.
type TranslatorMatcher struct {
	pool      *core.TranslatorPoolCache
	jobs      core.JobStore
	customers core.CustomerDirectory
	expr      string
	eval      EligibilityEvaluator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewTranslatorMatcher constructs a matcher and validates the eligibility expression.
func NewTranslatorMatcher(opts TranslatorMatcherOptions) (*TranslatorMatcher, error) {
	if opts.Pool == nil {
		return nil, errors.New("translator pool is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}
	eval := opts.Evaluator
	if eval == nil {
		eval = jmespathEvaluator{}
	}
	expr := strings.TrimSpace(opts.EligibilityExpr)
	if err := eval.Validate(expr); err != nil {
		return nil, fmt.Errorf("invalid eligibility expression: %w", err)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "translator_matcher")
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &TranslatorMatcher{
		pool:      opts.Pool,
		jobs:      opts.Jobs,
		customers: opts.Customers,
		expr:      expr,
		eval:      eval,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// FindCandidates returns the ids of translators eligible for job, sorted.
func (m *TranslatorMatcher) FindCandidates(ctx context.Context, job *model.Job) ([]string, error) {
	if job == nil {
		return nil, apperrors.Validation("job is required")
	}
	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	pool, err := m.pool.Snapshot(sctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load translator pool: %w", storeErr(err))
	}

	var blocked *model.Customer
	if m.customers != nil && job.CustomerID != "" {
		sctx, cancel := context.WithTimeout(ctx, m.timeout)
		c, cerr := m.customers.GetCustomer(sctx, job.CustomerID)
		cancel()
		switch {
		case cerr == nil:
			blocked = c
		case apperrors.IsNotFound(cerr):
			// Nothing to exclude.
		default:
			return nil, fmt.Errorf("load customer %s: %w", job.CustomerID, storeErr(cerr))
		}
	}

	out := make([]string, 0, len(pool))
	for _, t := range pool {
		if t == nil || !m.eligible(ctx, job, t) {
			continue
		}
		if blocked != nil && blocked.Blocks(t.ID) {
			continue
		}
		out = append(out, t.ID)
	}
	sort.Strings(out)
	return slices.Compact(out), nil
}

func (m *TranslatorMatcher) eligible(ctx context.Context, job *model.Job, t *model.Translator) bool {
	if !t.Available {
		return false
	}
	if !t.Speaks(job.FromLanguage) || !t.Speaks(job.ToLanguage) {
		return false
	}
	if job.Physical && !t.Serves(job.Town) {
		return false
	}
	if job.RequiredGender != "" && !strings.EqualFold(job.RequiredGender, t.Gender) {
		return false
	}
	if job.RequiresCertified && !t.Certified {
		return false
	}
	if job.HasDeclined(t.ID) {
		return false
	}
	if m.expr == "" {
		return true
	}

	res, err := m.eval.Evaluate(m.expr, t.Document())
	if err != nil {
		// A failing expression excludes the translator rather than the whole job.
		if m.logger != nil {
			m.logger.WarnContext(ctx, "eligibility expression failed", "translator_id", t.ID, "error", err)
		}
		return false
	}
	return truthy(res)
}

// truthy applies JMESPath truthiness: false, null, "", empty arrays and objects are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// FindPotentialJobs returns Offered jobs listing translatorID as a candidate that the
// translator has not declined, soonest due first.
func (m *TranslatorMatcher) FindPotentialJobs(ctx context.Context, translatorID string) ([]*model.Job, error) {
	if strings.TrimSpace(translatorID) == "" {
		return nil, apperrors.ValidationField("translator_id", "translator id is required")
	}
	jobs, err := m.jobs.Query(ctx, model.JobFilter{
		Statuses:    []model.JobStatus{model.JobStatusOffered},
		CandidateID: translatorID,
		SortBy:      "due_at",
		SortOrder:   "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("query potential jobs: %w", err)
	}

	out := make([]*model.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.IsCandidate(translatorID) && !j.HasDeclined(translatorID) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].DueAt.Equal(out[b].DueAt) {
			return out[a].DueAt.Before(out[b].DueAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}
