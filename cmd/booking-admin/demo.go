package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dtapi/booking-engine/internal/bootstrap"
	"github.com/dtapi/booking-engine/internal/domain/model"
)

type demoStep struct {
	label string
	run   func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (*model.Job, error)
}

// runDemo books a job, walks it to completion, then cancels and reopens a second one.
// It always runs in memory.
func runDemo(cmdCtx *commandContext, args []string) error {
	fs, common := newFlagSet("demo")
	if err := parseFlags(fs, common, args); err != nil {
		return err
	}
	common.Memory = true

	customer := model.Actor{ID: "cu-clinic", Role: model.RoleCustomer}
	spec := model.JobSpec{
		FromLanguage:    "sv",
		ToLanguage:      "en",
		DueAt:           time.Now().Add(24 * time.Hour).Truncate(time.Minute),
		DurationMinutes: 45,
	}

	return withEngine(cmdCtx, *common, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		completed, err := svc.Engine.Create(ctx, customer.ID, spec)
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		if err := reportDemo(cmdCtx, "created", completed); err != nil {
			return err
		}
		if err := runDemoSteps(ctx, cmdCtx, svc, completed.ID, []demoStep{
			{"accepted", func(ctx context.Context, svc *bootstrap.ServiceContainer, id string) (*model.Job, error) {
				return svc.Engine.Accept(ctx, id, "tr-anna")
			}},
			{"started", func(ctx context.Context, svc *bootstrap.ServiceContainer, id string) (*model.Job, error) {
				return svc.Engine.Start(ctx, id)
			}},
			{"ended", func(ctx context.Context, svc *bootstrap.ServiceContainer, id string) (*model.Job, error) {
				return svc.Engine.End(ctx, id)
			}},
		}); err != nil {
			return err
		}

		feed := model.ParseDistanceFeed(map[string]string{
			"jobid": completed.ID, "distance": "12", "time": "50", "flagged": "true", "admincomment": "demo",
		})
		res, err := svc.Distances.ApplyFeed(ctx, feed)
		if err != nil {
			return fmt.Errorf("distance feed: %w", err)
		}
		if err := writef(cmdCtx.Out, "%-10s distance=%t admin=%t\n", "feed", res.DistanceUpdated, res.AdminUpdated); err != nil {
			return err
		}

		reopened, err := svc.Engine.Create(ctx, customer.ID, spec)
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		if err := reportDemo(cmdCtx, "created", reopened); err != nil {
			return err
		}
		return runDemoSteps(ctx, cmdCtx, svc, reopened.ID, []demoStep{
			{"cancelled", func(ctx context.Context, svc *bootstrap.ServiceContainer, id string) (*model.Job, error) {
				return svc.Engine.Cancel(ctx, id, customer)
			}},
			{"reopened", func(ctx context.Context, svc *bootstrap.ServiceContainer, id string) (*model.Job, error) {
				return svc.Engine.Reopen(ctx, id)
			}},
		})
	})
}

func runDemoSteps(ctx context.Context, cmdCtx *commandContext, svc *bootstrap.ServiceContainer, jobID string, steps []demoStep) error {
	for _, step := range steps {
		job, err := step.run(ctx, svc, jobID)
		if err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
		if err := reportDemo(cmdCtx, step.label, job); err != nil {
			return err
		}
	}
	return nil
}

func reportDemo(cmdCtx *commandContext, label string, job *model.Job) error {
	return writef(cmdCtx.Out, "%-10s %s status=%s candidates=%v\n", label, job.ID, job.Status, job.Candidates)
}
