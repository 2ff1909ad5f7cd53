package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dtapi/booking-engine/internal/bootstrap"
	"github.com/dtapi/booking-engine/internal/devseed"
	"github.com/dtapi/booking-engine/internal/domain/model"
)

type commonFlags struct {
	Memory  bool
	Timeout time.Duration
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	common := &commonFlags{}
	fs.BoolVar(&common.Memory, "memory", false, "Use the seeded in-memory store and log-only transports")
	fs.DurationVar(&common.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	return fs, common
}

func parseFlags(fs *flag.FlagSet, common *commonFlags, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if common.Timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return nil
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func runSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags("seed", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
		return err
	}
	if err := devseed.Run(ctx, db, cmdCtx.Logger); err != nil {
		return fmt.Errorf("seed directory: %w", err)
	}
	return writef(cmdCtx.Out, "seeded %d translators and %d customers\n",
		len(devseed.Translators()), len(devseed.Customers()))
}

type createJobOptions struct {
	CustomerID string
	Spec       model.JobSpec
	Due        string
}

func parseCreateJobFlags(args []string) (createJobOptions, commonFlags, error) {
	fs, common := newFlagSet("create-job")
	var opts createJobOptions
	fs.StringVar(&opts.CustomerID, "customer", "", "Customer id (required)")
	fs.StringVar(&opts.Spec.FromLanguage, "from", "", "Source language code (required)")
	fs.StringVar(&opts.Spec.ToLanguage, "to", "", "Target language code (required)")
	fs.StringVar(&opts.Spec.Town, "town", "", "Town for on-site bookings")
	fs.BoolVar(&opts.Spec.Physical, "physical", false, "Book an on-site session instead of a phone session")
	fs.StringVar(&opts.Due, "due", "", "Due time in RFC3339 (default: 24h from now)")
	fs.IntVar(&opts.Spec.DurationMinutes, "duration", 60, "Session length in minutes")
	fs.StringVar(&opts.Spec.RequiredGender, "gender", "", "Required translator gender")
	fs.BoolVar(&opts.Spec.RequiresCertified, "certified", false, "Require a certified translator")
	fs.StringVar(&opts.Spec.CustomerPhone, "phone", "", "Customer phone for the session")
	fs.StringVar(&opts.Spec.Instructions, "instructions", "", "Free-text instructions")
	if err := parseFlags(fs, common, args); err != nil {
		return createJobOptions{}, commonFlags{}, err
	}
	if err := requireFlag("customer", opts.CustomerID); err != nil {
		return createJobOptions{}, commonFlags{}, err
	}

	opts.Spec.DueAt = time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	if opts.Due != "" {
		due, err := time.Parse(time.RFC3339, opts.Due)
		if err != nil {
			return createJobOptions{}, commonFlags{}, fmt.Errorf("--due: %w", err)
		}
		opts.Spec.DueAt = due
	}
	return opts, *common, nil
}

func runCreateJob(cmdCtx *commandContext, args []string) error {
	opts, common, err := parseCreateJobFlags(args)
	if err != nil {
		return err
	}
	return withEngine(cmdCtx, common, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		job, err := svc.Engine.Create(ctx, opts.CustomerID, opts.Spec)
		if err != nil {
			return err
		}
		return printJSON(cmdCtx.Out, job)
	})
}

// jobCommand parses -job (plus any extra flags) and applies op to the job.
func jobCommand(
	name string,
	extra func(fs *flag.FlagSet),
	validate func() error,
	op func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error),
) commandFn {
	return func(cmdCtx *commandContext, args []string) error {
		fs, common := newFlagSet(name)
		var jobID string
		fs.StringVar(&jobID, "job", "", "Job id (required)")
		if extra != nil {
			extra(fs)
		}
		if err := parseFlags(fs, common, args); err != nil {
			return err
		}
		if err := requireFlag("job", jobID); err != nil {
			return err
		}
		if validate != nil {
			if err := validate(); err != nil {
				return err
			}
		}
		return withEngine(cmdCtx, *common, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			out, err := op(ctx, svc, jobID)
			if err != nil {
				return err
			}
			return printJSON(cmdCtx.Out, out)
		})
	}
}

func runAssign(cmdCtx *commandContext, args []string) error {
	return jobCommand("assign", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Assign(ctx, jobID)
		})(cmdCtx, args)
}

func runAssignForce(cmdCtx *commandContext, args []string) error {
	return jobCommand("assign-force", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.AssignForce(ctx, jobID)
		})(cmdCtx, args)
}

func runAccept(cmdCtx *commandContext, args []string) error {
	var translatorID string
	return jobCommand("accept",
		func(fs *flag.FlagSet) { fs.StringVar(&translatorID, "translator", "", "Translator id (required)") },
		func() error { return requireFlag("translator", translatorID) },
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Accept(ctx, jobID, translatorID)
		})(cmdCtx, args)
}

func runAcceptByID(cmdCtx *commandContext, args []string) error {
	var (
		actor        model.Actor
		translatorID string
	)
	return jobCommand("accept-by-id",
		func(fs *flag.FlagSet) {
			actorFlags(fs, &actor, model.RoleAdmin)
			fs.StringVar(&translatorID, "translator", "", "Translator to bind (defaults to the actor)")
		},
		func() error { return requireFlag("actor", actor.ID) },
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.AcceptByID(ctx, model.AcceptByIDRequest{
				JobID:        jobID,
				Actor:        actor,
				TranslatorID: translatorID,
			})
		})(cmdCtx, args)
}

func runDecline(cmdCtx *commandContext, args []string) error {
	var translatorID string
	return jobCommand("decline",
		func(fs *flag.FlagSet) { fs.StringVar(&translatorID, "translator", "", "Translator id (required)") },
		func() error { return requireFlag("translator", translatorID) },
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Decline(ctx, jobID, translatorID)
		})(cmdCtx, args)
}

func runStart(cmdCtx *commandContext, args []string) error {
	return jobCommand("start", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Start(ctx, jobID)
		})(cmdCtx, args)
}

func runCancel(cmdCtx *commandContext, args []string) error {
	var actor model.Actor
	return jobCommand("cancel",
		func(fs *flag.FlagSet) { actorFlags(fs, &actor, model.RoleAdmin) },
		func() error { return requireFlag("actor", actor.ID) },
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Cancel(ctx, jobID, actor)
		})(cmdCtx, args)
}

func runEnd(cmdCtx *commandContext, args []string) error {
	return jobCommand("end", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.End(ctx, jobID)
		})(cmdCtx, args)
}

func runCustomerNotCall(cmdCtx *commandContext, args []string) error {
	return jobCommand("customer-not-call", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.CustomerNotCall(ctx, jobID)
		})(cmdCtx, args)
}

func runReopen(cmdCtx *commandContext, args []string) error {
	return jobCommand("reopen", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Reopen(ctx, jobID)
		})(cmdCtx, args)
}

func runResendPush(cmdCtx *commandContext, args []string) error {
	return jobCommand("resend-push", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Dispatcher.ResendPush(ctx, jobID)
		})(cmdCtx, args)
}

func runResendSMS(cmdCtx *commandContext, args []string) error {
	return jobCommand("resend-sms", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Dispatcher.ResendSMS(ctx, jobID)
		})(cmdCtx, args)
}

func runShow(cmdCtx *commandContext, args []string) error {
	return jobCommand("show", nil, nil,
		func(ctx context.Context, svc *bootstrap.ServiceContainer, jobID string) (any, error) {
			return svc.Engine.Get(ctx, jobID)
		})(cmdCtx, args)
}

// distanceFeedKeys maps CLI flags to the legacy feed keys understood by ParseDistanceFeed.
var distanceFeedKeys = map[string]string{
	"distance":         "distance",
	"time":             "time",
	"session-time":     "session_time",
	"flagged":          "flagged",
	"admin-comment":    "admincomment",
	"manually-handled": "manually_handled",
	"by-admin":         "by_admin",
}

func parseDistanceFeedFlags(args []string) (model.DistanceFeed, commonFlags, error) {
	fs, common := newFlagSet("distance-feed")
	var jobID string
	fs.StringVar(&jobID, "job", "", "Job id (required)")
	values := make(map[string]*string, len(distanceFeedKeys))
	for name := range distanceFeedKeys {
		values[name] = fs.String(name, "", "Feed value for "+distanceFeedKeys[name])
	}
	if err := parseFlags(fs, common, args); err != nil {
		return model.DistanceFeed{}, commonFlags{}, err
	}
	if err := requireFlag("job", jobID); err != nil {
		return model.DistanceFeed{}, commonFlags{}, err
	}

	// Only flags given on the command line count as supplied.
	raw := map[string]string{"jobid": jobID}
	fs.Visit(func(f *flag.Flag) {
		if key, ok := distanceFeedKeys[f.Name]; ok {
			raw[key] = *values[f.Name]
		}
	})
	return model.ParseDistanceFeed(raw), *common, nil
}

func runDistanceFeed(cmdCtx *commandContext, args []string) error {
	feed, common, err := parseDistanceFeedFlags(args)
	if err != nil {
		return err
	}
	return withEngine(cmdCtx, common, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		res, err := svc.Distances.ApplyFeed(ctx, feed)
		if res != nil {
			if perr := printJSON(cmdCtx.Out, res); perr != nil {
				return errors.Join(err, perr)
			}
		}
		return err
	})
}

func runPotentialJobs(cmdCtx *commandContext, args []string) error {
	fs, common := newFlagSet("potential-jobs")
	var translatorID string
	fs.StringVar(&translatorID, "translator", "", "Translator id (required)")
	if err := parseFlags(fs, common, args); err != nil {
		return err
	}
	if err := requireFlag("translator", translatorID); err != nil {
		return err
	}
	return withEngine(cmdCtx, *common, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		jobs, err := svc.Matcher.FindPotentialJobs(ctx, translatorID)
		if err != nil {
			return err
		}
		return printJobTable(cmdCtx.Out, jobs)
	})
}

type listOptions struct {
	Actor  model.Actor
	Status string
	Limit  int
	Offset int
}

func parseListFlags(name string, args []string) (listOptions, commonFlags, error) {
	fs, common := newFlagSet(name)
	var opts listOptions
	actorFlags(fs, &opts.Actor, model.RoleAdmin)
	fs.StringVar(&opts.Status, "status", "", "Only jobs in this status")
	fs.IntVar(&opts.Limit, "limit", model.DefaultListLimit, "Maximum number of jobs")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of jobs to skip")
	if err := parseFlags(fs, common, args); err != nil {
		return listOptions{}, commonFlags{}, err
	}
	if err := requireFlag("actor", opts.Actor.ID); err != nil {
		return listOptions{}, commonFlags{}, err
	}
	return opts, *common, nil
}

func (o listOptions) jobListOptions() (model.JobListOptions, error) {
	out := model.JobListOptions{Limit: o.Limit, Offset: o.Offset}
	if o.Status != "" {
		var status model.JobStatus
		if err := status.UnmarshalText([]byte(o.Status)); err != nil {
			return out, fmt.Errorf("--status: %w", err)
		}
		out.Status = &status
	}
	return out, nil
}

func runList(cmdCtx *commandContext, args []string) error {
	return runListing(cmdCtx, "list", args, func(ctx context.Context, svc *bootstrap.ServiceContainer, actor model.Actor, opts model.JobListOptions) ([]*model.Job, error) {
		return svc.Engine.ListForActor(ctx, actor, opts)
	})
}

func runHistory(cmdCtx *commandContext, args []string) error {
	return runListing(cmdCtx, "history", args, func(ctx context.Context, svc *bootstrap.ServiceContainer, actor model.Actor, opts model.JobListOptions) ([]*model.Job, error) {
		return svc.Engine.History(ctx, actor, opts)
	})
}

func runListing(
	cmdCtx *commandContext,
	name string,
	args []string,
	fetch func(context.Context, *bootstrap.ServiceContainer, model.Actor, model.JobListOptions) ([]*model.Job, error),
) error {
	opts, common, err := parseListFlags(name, args)
	if err != nil {
		return err
	}
	listOpts, err := opts.jobListOptions()
	if err != nil {
		return err
	}
	return withEngine(cmdCtx, common, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		jobs, err := fetch(ctx, svc, opts.Actor, listOpts)
		if err != nil {
			return err
		}
		return printJobTable(cmdCtx.Out, jobs)
	})
}

func actorFlags(fs *flag.FlagSet, actor *model.Actor, defaultRole model.Role) {
	actor.Role = defaultRole
	fs.StringVar(&actor.ID, "actor", "", "Acting user id (required)")
	fs.TextVar(&actor.Role, "role", defaultRole, "Acting role: customer, translator, admin, superadmin")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobTable(w io.Writer, jobs []*model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tStatus\tCustomer\tTranslator\tLanguages\tDue\tCandidates"); err != nil {
		return fmt.Errorf("write job table header: %w", err)
	}
	for _, j := range jobs {
		translator := "-"
		if j.TranslatorID != nil {
			translator = *j.TranslatorID
		}
		candidates := append([]string(nil), j.Candidates...)
		sort.Strings(candidates)
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s→%s\t%s\t%s\n",
			j.ID, j.Status, j.CustomerID, translator, j.FromLanguage, j.ToLanguage,
			j.DueAt.Format(time.RFC3339), strings.Join(candidates, ",")); err != nil {
			return fmt.Errorf("write job %s: %w", j.ID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job table: %w", err)
	}
	return writef(w, "%d job(s)\n", len(jobs))
}
