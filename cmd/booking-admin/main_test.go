package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtapi/booking-engine/config"
	"github.com/dtapi/booking-engine/internal/domain/model"
)

func newTestContext(t *testing.T) (*commandContext, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	cfg := config.AppConfig{Services: string(config.ServiceModeReofferSweeper)}
	cfg.Sanitize()
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Out:    out,
	}, out
}

func runJSON[T any](t *testing.T, cmdCtx *commandContext, out *bytes.Buffer, name string, args ...string) T {
	t.Helper()
	out.Reset()
	require.NoError(t, commands()[name].run(cmdCtx, append([]string{"-memory"}, args...)))
	var v T
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"migrate", "seed", "create-job", "assign", "assign-force", "accept", "accept-by-id", "decline",
		"start", "cancel", "end", "customer-not-call", "reopen", "distance-feed", "resend-push",
		"resend-sms", "potential-jobs", "show", "list", "history", "demo",
	} {
		cmd, ok := commands()[name]
		require.True(t, ok, name)
		assert.Equal(t, name, cmd.name)
		assert.NotEmpty(t, cmd.description)
	}

	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	assert.Contains(t, buf.String(), "create-job")
	assert.Contains(t, buf.String(), "-memory")
}

func TestMemoryLifecycle(t *testing.T) {
	cmdCtx, out := newTestContext(t)
	due := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	job := runJSON[model.Job](t, cmdCtx, out, "create-job",
		"-customer", "cu-clinic", "-from", "sv", "-to", "en", "-due", due)
	assert.Equal(t, model.JobStatusOffered, job.Status)
	assert.Equal(t, []string{"tr-anna", "tr-omar"}, job.Candidates)

	out.Reset()
	require.NoError(t, runPotentialJobs(cmdCtx, []string{"-memory", "-translator", "tr-omar"}))
	assert.Contains(t, out.String(), job.ID)
	assert.Contains(t, out.String(), "1 job(s)")

	declined := runJSON[model.Job](t, cmdCtx, out, "decline", "-job", job.ID, "-translator", "tr-omar")
	assert.Equal(t, []string{"tr-anna"}, declined.Candidates)

	accepted := runJSON[model.Job](t, cmdCtx, out, "accept", "-job", job.ID, "-translator", "tr-anna")
	assert.Equal(t, model.JobStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.TranslatorID)
	assert.Equal(t, "tr-anna", *accepted.TranslatorID)

	started := runJSON[model.Job](t, cmdCtx, out, "start", "-job", job.ID)
	assert.Equal(t, model.JobStatusInProgress, started.Status)

	ended := runJSON[model.Job](t, cmdCtx, out, "end", "-job", job.ID)
	assert.Equal(t, model.JobStatusCompleted, ended.Status)

	res := runJSON[model.FeedResult](t, cmdCtx, out, "distance-feed",
		"-job", job.ID, "-time", "45", "-flagged", "true", "-admin-comment", "checked")
	assert.True(t, res.DistanceUpdated)
	assert.True(t, res.AdminUpdated)
	require.NotNil(t, res.Distance)
	assert.Equal(t, "45", res.Distance.Time)

	shown := runJSON[model.Job](t, cmdCtx, out, "show", "-job", job.ID)
	assert.True(t, shown.Flagged)
	assert.Equal(t, "checked", shown.AdminComments)

	out.Reset()
	require.NoError(t, runHistory(cmdCtx, []string{"-memory", "-actor", "cu-clinic", "-role", "customer"}))
	assert.Contains(t, out.String(), job.ID)
}

func TestMemoryCancelAndReopen(t *testing.T) {
	cmdCtx, out := newTestContext(t)

	job := runJSON[model.Job](t, cmdCtx, out, "create-job",
		"-customer", "cu-court", "-from", "sv", "-to", "en")
	assert.Equal(t, []string{"tr-anna"}, job.Candidates, "blocked translator excluded")

	cancelled := runJSON[model.Job](t, cmdCtx, out, "cancel",
		"-job", job.ID, "-actor", "cu-court", "-role", "customer")
	assert.Equal(t, model.JobStatusCancelled, cancelled.Status)

	reopened := runJSON[model.Job](t, cmdCtx, out, "reopen", "-job", job.ID)
	assert.Equal(t, model.JobStatusOffered, reopened.Status)

	dispatch := runJSON[model.DispatchResult](t, cmdCtx, out, "resend-sms", "-job", job.ID)
	assert.Equal(t, job.ID, dispatch.JobID)
}

func TestFlagValidation(t *testing.T) {
	cmdCtx, _ := newTestContext(t)

	err := runAccept(cmdCtx, []string{"-memory", "-job", "j1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--translator is required")

	err = runShow(cmdCtx, []string{"-memory"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--job is required")

	err = runCancel(cmdCtx, []string{"-memory", "-job", "j1", "-actor", "a1", "-role", "pilot"})
	require.Error(t, err)

	err = runList(cmdCtx, []string{"-memory", "-actor", "a1", "-status", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--status")

	_, _, err = parseCreateJobFlags([]string{"-customer", "c", "-due", "tomorrow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--due")

	_, err = parseMigrateFlags("migrate", []string{"-timeout", "0s"})
	require.Error(t, err)
}

func TestParseDistanceFeedFlags_OnlyGivenFlagsCount(t *testing.T) {
	feed, common, err := parseDistanceFeedFlags([]string{"-memory", "-job", "j1", "-time", "30"})
	require.NoError(t, err)
	assert.True(t, common.Memory)
	assert.Equal(t, "j1", feed.JobID)
	require.NotNil(t, feed.Time)
	assert.Equal(t, "30", *feed.Time)
	assert.Nil(t, feed.Distance)
	assert.False(t, feed.HasAdminInput())
}

func TestDemo(t *testing.T) {
	cmdCtx, out := newTestContext(t)
	require.NoError(t, runDemo(cmdCtx, nil))
	assert.Contains(t, out.String(), "status=completed")
	assert.Contains(t, out.String(), "distance=true admin=true")
	assert.Contains(t, out.String(), "status=cancelled")
	assert.Contains(t, out.String(), "reopened")
}

func TestHasRedisConfig(t *testing.T) {
	assert.False(t, hasRedisConfig(nil))
	assert.False(t, hasRedisConfig(&config.RedisConfig{URI: "localhost:6379"}))
	assert.True(t, hasRedisConfig(&config.RedisConfig{Enabled: true, URI: "localhost:6379"}))
	assert.True(t, hasRedisConfig(&config.RedisConfig{Enabled: true, UseSentinel: true, SentinelNodes: []string{"s:26379"}}))
	assert.False(t, hasRedisConfig(&config.RedisConfig{Enabled: true, UseCluster: true}))
}
