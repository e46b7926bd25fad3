// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow owns the file-conversion session: the current selection,
// the soft daily quota check, per-file conversion, and the aggregated batch
// handed to whatever presents the results.
//
// The controller moves through Idle, FilesSelected, Converting, and
// Completed. A new selection is accepted in any state; it clears the previous
// results, and if a batch is still running its results are discarded when it
// finishes.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/mdconvert/internal/convert"
	"github.com/pdiddy/mdconvert/internal/quota"
	"github.com/pdiddy/mdconvert/pkg/types"
)

// State is the controller's position in the selection/conversion cycle.
type State int

const (
	Idle State = iota
	FilesSelected
	Converting
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FilesSelected:
		return "files-selected"
	case Converting:
		return "converting"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNoFiles is returned when a conversion starts with an empty selection.
	ErrNoFiles = errors.New("no files selected")

	// ErrConversionInProgress is returned when a batch is already running.
	ErrConversionInProgress = errors.New("conversion already in progress")

	// ErrBatchSuperseded is returned when a newer selection replaced the one
	// a batch was started with. The batch's results were discarded.
	ErrBatchSuperseded = errors.New("batch superseded by a newer selection")

	// ErrBatchFault is returned when a batch failed unexpectedly.
	ErrBatchFault = errors.New("conversion failed unexpectedly")
)

// QuotaExceededError reports that the selection does not fit in today's
// allowance. No file was sent.
type QuotaExceededError struct {
	Requested int
	Remaining int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily limit reached: %d file(s) requested, %d remaining", e.Requested, e.Remaining)
}

// Config tunes a Controller.
type Config struct {
	// DailyLimit is the soft per-day quota (default 10).
	DailyLimit int

	// Concurrency is how many files convert at once (default 1, sequential).
	Concurrency int

	// Options is passed to every conversion.
	Options types.ConversionOptions

	// Now returns the current time; the quota day is derived from it.
	Now func() time.Time

	Logger *slog.Logger
}

// Controller drives one user's conversion session.
type Controller struct {
	converter convert.Converter
	tracker   *quota.Tracker
	notifier  Notifier
	limit     int
	workers   int
	now       func() time.Time
	log       *slog.Logger

	mu         sync.Mutex
	state      State
	selection  []types.SelectedFile
	results    []types.ConversionResult
	options    types.ConversionOptions
	generation uint64

	// running is set while a batch is in flight, whatever the state says:
	// a new selection moves the state on but does not stop the batch.
	running bool
}

// New returns an Idle controller. A nil notifier discards events.
func New(converter convert.Converter, tracker *quota.Tracker, notifier Notifier, cfg Config) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = quota.DefaultDailyLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		converter: converter,
		tracker:   tracker,
		notifier:  notifier,
		limit:     cfg.DailyLimit,
		workers:   cfg.Concurrency,
		now:       cfg.Now,
		log:       cfg.Logger.With("component", "workflow"),
		options:   cfg.Options,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Selection returns a copy of the current selection.
func (c *Controller) Selection() []types.SelectedFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.SelectedFile(nil), c.selection...)
}

// Results returns a copy of the last completed batch's results.
func (c *Controller) Results() []types.ConversionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ConversionResult(nil), c.results...)
}

// SetOptions replaces the options used by the next batch.
func (c *Controller) SetOptions(opts types.ConversionOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = opts
}

// SelectFiles replaces the selection and clears prior results. It is valid
// in every state; a running batch keeps going but its results will be
// dropped, and no new batch starts until it finishes.
func (c *Controller) SelectFiles(files []types.SelectedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectLocked(files)
}

func (c *Controller) selectLocked(files []types.SelectedFile) {
	c.generation++
	c.selection = append([]types.SelectedFile(nil), files...)
	c.results = nil
	if len(files) == 0 {
		c.state = Idle
	} else {
		c.state = FilesSelected
	}
}

// StartConversion converts the current selection and returns the batch.
// It is accepted from FilesSelected and from Completed, where it converts the
// same selection again as a new batch.
//
// It fails with ErrNoFiles, ErrConversionInProgress, or a
// *QuotaExceededError before any file is sent. Once started, individual file
// failures are reported inside the batch and never end it early.
func (c *Controller) StartConversion(ctx context.Context) (types.Batch, error) {
	c.mu.Lock()
	job, err := c.beginLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		c.reject(err)
		return types.Batch{}, err
	}
	return c.run(ctx, job)
}

// Run selects files and converts them in one step, refusing to replace a
// selection whose batch is still running.
func (c *Controller) Run(ctx context.Context, files []types.SelectedFile) (types.Batch, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.reject(ErrConversionInProgress)
		return types.Batch{}, ErrConversionInProgress
	}
	c.selectLocked(files)
	job, err := c.beginLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		c.reject(err)
		return types.Batch{}, err
	}
	return c.run(ctx, job)
}

// job is a batch that passed its checks.
type job struct {
	batch      types.Batch
	files      []types.SelectedFile
	options    types.ConversionOptions
	generation uint64
}

func (c *Controller) beginLocked(ctx context.Context) (job, error) {
	switch {
	case c.running:
		return job{}, ErrConversionInProgress
	case len(c.selection) == 0:
		return job{}, ErrNoFiles
	}

	date := quota.Day(c.now())
	res := c.tracker.CheckAndReserve(ctx, date, len(c.selection), c.limit)
	if !res.Allowed {
		c.state = FilesSelected
		return job{}, &QuotaExceededError{Requested: len(c.selection), Remaining: res.Remaining}
	}

	c.state = Converting
	c.running = true
	c.results = nil
	return job{
		batch: types.Batch{
			ID:    uuid.New().String(),
			Date:  date,
			Total: len(c.selection),
		},
		files:      append([]types.SelectedFile(nil), c.selection...),
		options:    c.options,
		generation: c.generation,
	}, nil
}

func (c *Controller) run(ctx context.Context, j job) (batch types.Batch, err error) {
	log := c.log.With("batch", j.batch.ID, "files", len(j.files))
	log.Info("batch started")

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch panicked", "panic", r)
			c.mu.Lock()
			if c.generation == j.generation {
				c.state = FilesSelected
			}
			c.mu.Unlock()
			c.notify(faultNotice())
			batch, err = types.Batch{}, fmt.Errorf("%w: %v", ErrBatchFault, r)
		}
	}()

	results := c.convertAll(ctx, j.files, j.options)

	batch = j.batch
	batch.Results = results
	for _, r := range results {
		if r.Succeeded {
			batch.Converted++
		}
	}

	// Successful conversions count against the quota even if the batch is
	// about to be discarded or ctx was cancelled: the remote work was done.
	c.tracker.RecordSuccesses(context.WithoutCancel(ctx), batch.Date, batch.Converted)

	c.mu.Lock()
	if c.generation != j.generation {
		c.mu.Unlock()
		log.Info("batch superseded, discarding results", "converted", batch.Converted)
		return types.Batch{}, ErrBatchSuperseded
	}
	c.results = results
	c.state = Completed
	c.mu.Unlock()

	log.Info("batch complete", "converted", batch.Converted, "failed", batch.Failed())
	c.notifier.Notify(Notice{
		Level:   LevelInfo,
		Title:   "Conversion Complete!",
		Message: fmt.Sprintf("Successfully converted %d file(s) to Markdown", batch.Converted),
	})
	c.notifier.BatchReady(batch)
	return batch, nil
}

// convertAll converts files in order. With more than one worker the calls
// overlap, but each result still lands at its file's index.
func (c *Controller) convertAll(ctx context.Context, files []types.SelectedFile, opts types.ConversionOptions) []types.ConversionResult {
	results := make([]types.ConversionResult, len(files))
	if c.workers <= 1 {
		for i, f := range files {
			results[i] = c.convertOne(ctx, f, opts)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			results[i] = c.convertOne(ctx, f, opts)
			return nil
		})
	}
	g.Wait()
	return results
}

// convertOne shields the batch from a converter that panics.
func (c *Controller) convertOne(ctx context.Context, f types.SelectedFile, opts types.ConversionOptions) (res types.ConversionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("converter panicked", "file", f.Name, "panic", r)
			res = types.ConversionResult{
				SourceFile: f,
				Content:    convert.ErrorContent(f.Name, fmt.Errorf("internal error: %v", r)),
			}
		}
	}()
	return c.converter.Convert(ctx, f, opts)
}

// reject turns a pre-flight error into a user-facing notice.
func (c *Controller) reject(err error) {
	var qe *QuotaExceededError
	switch {
	case errors.As(err, &qe):
		c.notifier.Notify(Notice{
			Level:   LevelError,
			Title:   "Daily Limit Reached",
			Message: fmt.Sprintf("You can only convert %d more file(s) today.", qe.Remaining),
		})
	case errors.Is(err, ErrNoFiles):
		c.notifier.Notify(Notice{
			Level:   LevelError,
			Title:   "No files selected",
			Message: "Please upload at least one file to convert",
		})
	case errors.Is(err, ErrConversionInProgress):
		c.notifier.Notify(Notice{
			Level:   LevelError,
			Title:   "Conversion in progress",
			Message: "Wait for the current conversion to finish before starting another",
		})
	default:
		c.notifier.Notify(faultNotice())
	}
}

// notify delivers n from a recover path, where the notifier itself may be
// the thing that panicked.
func (c *Controller) notify(n Notice) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("notifier panicked", "title", n.Title, "panic", r)
		}
	}()
	c.notifier.Notify(n)
}

func faultNotice() Notice {
	return Notice{
		Level:   LevelError,
		Title:   "Conversion Failed",
		Message: "An error occurred during conversion. Please try again.",
	}
}
