// Package runner drives one scheduling run per account: lock, plan slots,
// allocate clips, publish and commit, then report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clipsync/internal/account"
	"clipsync/internal/allocator"
	"clipsync/internal/clip"
	"clipsync/internal/locales"
	"clipsync/internal/notify"
	"clipsync/internal/planner"
	"clipsync/internal/publish"
	"clipsync/internal/storage"
)

const slotLayout = "2006-01-02 15:04"

// ErrSaturatedSchedule reports that no slot is free inside the horizon.
// It ends a run cleanly and is not a failure.
var ErrSaturatedSchedule = errors.New("runner: schedule is full")

// Env carries the run-level settings shared by every component.
type Env struct {
	Logger  *slog.Logger
	Now     func() time.Time
	Horizon time.Duration
}

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) horizon() time.Duration {
	if e.Horizon > 0 {
		return e.Horizon
	}
	return planner.DefaultHorizon
}

// Store is the account persistence the runner needs. storage.Store implements it.
type Store interface {
	Load(ctx context.Context, id string) (*account.Account, error)
	Save(ctx context.Context, acct *account.Account) error
}

// Library lists and deletes rendered clips. *clip.Library implements it.
type Library interface {
	List(accountID string) ([]clip.Rendered, error)
	Remove(c clip.Rendered) error
}

// Messages renders operator notifications. *locales.Localizer implements it.
type Messages interface {
	Message(msgID string, data map[string]any) string
}

// AgentFactory opens a publish agent for one account. The returned func
// releases it.
type AgentFactory func(ctx context.Context, acct *account.Account) (publish.Agent, func(), error)

// Runner processes accounts one at a time.
type Runner struct {
	Env       Env
	Store     Store
	Locker    storage.Locker
	Library   Library
	Discovery allocator.Discovery
	Producer  allocator.Producer
	Agents    AgentFactory
	Captioner *publish.Captioner
	Notifier  notify.Notifier
	Messages  Messages
}

// Report is the outcome of one account run.
type Report struct {
	RunID     string
	AccountID string
	Slots     []time.Time
	Published []allocator.Assignment
	// Err is nil on success, ErrSaturatedSchedule when there was nothing to
	// do, or the error that stopped the run.
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the run ended with an error other than a full schedule.
func (r Report) Failed() bool {
	return r.Err != nil && !errors.Is(r.Err, ErrSaturatedSchedule)
}

// RunAll runs every account in ids in order. A failed account does not stop
// the ones after it.
func (r *Runner) RunAll(ctx context.Context, ids []string) []Report {
	reports := make([]Report, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			reports = append(reports, Report{RunID: uuid.NewString(), AccountID: id, Err: ctx.Err()})
			continue
		}
		reports = append(reports, r.RunAccount(ctx, id))
	}
	return reports
}

// RunAccount performs one full run for the account id while holding its lock.
func (r *Runner) RunAccount(ctx context.Context, id string) Report {
	rep := Report{RunID: uuid.NewString(), AccountID: id, StartedAt: r.Env.now()}
	log := r.Env.logger().With("account", id, "run_id", rep.RunID)
	log.Info("run started")

	rep.Err = r.run(ctx, log, id, &rep)
	rep.FinishedAt = r.Env.now()

	switch {
	case rep.Err == nil:
		log.Info("run finished", "published", len(rep.Published), "duration", rep.FinishedAt.Sub(rep.StartedAt))
	case errors.Is(rep.Err, ErrSaturatedSchedule):
		log.Info("schedule is full, nothing to do")
	default:
		log.Error("run failed", "published", len(rep.Published), "error", rep.Err)
	}
	r.notify(ctx, log, rep)
	return rep
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, id string, rep *Report) error {
	lease, err := r.Locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release lock failed", "error", err)
		}
	}()

	acct, err := r.Store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := acct.Validate(); err != nil {
		return err
	}

	slots, err := r.slots(acct)
	if err != nil {
		return err
	}
	rep.Slots = slots
	if len(slots) == 0 {
		return ErrSaturatedSchedule
	}
	log.Info("slots planned", "count", len(slots), "first", slots[0], "last", slots[len(slots)-1])

	rendered, err := r.Library.List(acct.ID)
	if err != nil {
		return err
	}
	log.Info("rendered clips available", "count", len(rendered))

	assignments, err := allocator.New(r.Discovery, r.Producer, log).Allocate(ctx, acct, slots, rendered)
	if err != nil {
		return err
	}

	agent, release, err := r.Agents(ctx, acct)
	if err != nil {
		return fmt.Errorf("runner: open publish agent: %w", err)
	}
	defer release()

	committer := &publish.Committer{
		Agent:     agent,
		Captioner: r.captioner(),
		Store:     r.Store,
		Library:   r.Library,
		Logger:    log,
	}
	rep.Published, err = committer.Commit(ctx, acct, assignments)
	return err
}

func (r *Runner) slots(acct *account.Account) ([]time.Time, error) {
	times, err := acct.Times()
	if err != nil {
		return nil, err
	}
	return planner.New(r.Env.horizon(), r.Env.Now).Slots(acct.History, times)
}

func (r *Runner) captioner() *publish.Captioner {
	if r.Captioner != nil {
		return r.Captioner
	}
	return &publish.Captioner{Logger: r.Env.Logger}
}

// notify sends the run outcome to the operator. Delivery errors are logged only.
func (r *Runner) notify(ctx context.Context, log *slog.Logger, rep Report) {
	if r.Notifier == nil {
		return
	}
	text := r.summary(rep)
	if err := r.Notifier.Notify(context.WithoutCancel(ctx), text); err != nil {
		log.Warn("notification failed", "error", err)
	}
}

func (r *Runner) summary(rep Report) string {
	data := map[string]any{"Account": rep.AccountID}
	var msgID string
	switch {
	case errors.Is(rep.Err, ErrSaturatedSchedule):
		msgID = locales.MsgScheduleFull
	case rep.Err != nil:
		msgID = locales.MsgRunFailed
		data["Error"] = rep.Err.Error()
	case len(rep.Published) == 0:
		msgID = locales.MsgRunNothingPublished
	default:
		msgID = locales.MsgRunSummary
		data["Published"] = len(rep.Published)
		data["First"] = rep.Published[0].Slot.Format(slotLayout)
		data["Last"] = rep.Published[len(rep.Published)-1].Slot.Format(slotLayout)
	}
	if r.Messages != nil {
		return r.Messages.Message(msgID, data)
	}
	return fallbackSummary(msgID, data)
}

func fallbackSummary(msgID string, data map[string]any) string {
	switch msgID {
	case locales.MsgScheduleFull:
		return fmt.Sprintf("%s: schedule is full", data["Account"])
	case locales.MsgRunFailed:
		return fmt.Sprintf("%s: run failed: %s", data["Account"], data["Error"])
	case locales.MsgRunNothingPublished:
		return fmt.Sprintf("%s: nothing to publish", data["Account"])
	default:
		return fmt.Sprintf("%s: published %d clip(s), %s to %s", data["Account"], data["Published"], data["First"], data["Last"])
	}
}

// PlanEntry pairs a slot with the rendered clip it would receive. Clip is nil
// when the slot needs new content.
type PlanEntry struct {
	Slot time.Time
	Clip *clip.Rendered
}

// Plan is a dry run: the slots of an account and the clips already rendered
// for them.
type Plan struct {
	AccountID string
	Entries   []PlanEntry
}

// NeedsContent counts the slots no rendered clip covers.
func (p *Plan) NeedsContent() int {
	n := 0
	for _, e := range p.Entries {
		if e.Clip == nil {
			n++
		}
	}
	return n
}

// Plan computes the slots of account id and assigns already rendered clips in
// queue order. Nothing is discovered, produced, published or saved.
func (r *Runner) Plan(ctx context.Context, id string) (*Plan, error) {
	acct, err := r.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	slots, err := r.slots(acct)
	if err != nil {
		return nil, err
	}
	rendered, err := r.Library.List(acct.ID)
	if err != nil {
		return nil, err
	}

	queue := allocator.Queue(acct, rendered)
	plan := &Plan{AccountID: acct.ID, Entries: make([]PlanEntry, len(slots))}
	for i, s := range slots {
		plan.Entries[i].Slot = s
		if i < len(queue) {
			c := queue[i]
			plan.Entries[i].Clip = &c
		}
	}
	return plan, nil
}
