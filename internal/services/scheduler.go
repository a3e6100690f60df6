// Package services – Scheduler
//
// This file implements the tick driver. One tick walks every workspace in
// staleness order (never-called first, then oldest outbound call), applies
// the per-workspace rate gate, picks that workspace's single active upload,
// and drives it through the right phase:
//
//   - addition: drain queued items in strict row order, bounded by the
//     catch-up budget min(maxItems, elapsed/minInterval);
//   - checking: after the settle period, poll a batch of waiting items in
//     parallel;
//   - otherwise: just re-aggregate.
//
// A failure in one workspace is logged and isolated; the loop always moves
// on to the remaining workspaces.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-import-backend/internal/config"
	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// checkConcurrency bounds parallel status polls within one batch.
const checkConcurrency = 10

// TickResult is the aggregate outcome of one scheduler pass.
type TickResult struct {
	Processed int          `json:"processed"`
	Results   []ItemResult `json:"results"`
}

// Scheduler drives the import pipeline, one pass per external trigger.
type Scheduler struct {
	DB         *gorm.DB
	Machine    *ItemMachine
	Aggregator *Aggregator
	Log        zerolog.Logger
	Cfg        config.SchedulerConfig

	// Now and Sleep are seams for tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// NewScheduler constructs a Scheduler with real clock and sleep.
func NewScheduler(db *gorm.DB, machine *ItemMachine, agg *Aggregator, log zerolog.Logger, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		DB:         db,
		Machine:    machine,
		Aggregator: agg,
		Log:        log,
		Cfg:        cfg,
		Now:        func() time.Time { return time.Now().UTC() },
		Sleep:      time.Sleep,
	}
}

// Tick runs one scheduler pass over all workspaces.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	tr := otel.Tracer("services/Scheduler")
	ctx, span := tr.Start(ctx, "Tick")
	defer span.End()

	workspaces, err := repo.ListWorkspacesByStaleness(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("tick.workspaces", len(workspaces)))

	tickRuns.Inc()

	out := &TickResult{Results: []ItemResult{}}
	for i := range workspaces {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ws := workspaces[i]
		results, err := s.tickWorkspace(ctx, &ws)
		if err != nil {
			// Keep iterating; one broken workspace must not stall the rest.
			s.Log.Error().Err(err).Str("workspace", ws.Hash).Msg("workspace tick failed")
			continue
		}
		out.Results = append(out.Results, results...)
	}
	out.Processed = len(out.Results)
	return out, nil
}

func (s *Scheduler) tickWorkspace(ctx context.Context, ws *domain.Workspace) ([]ItemResult, error) {
	now := s.now()

	// Rate gate: one outbound call window per workspace per MinInterval.
	if ws.LastOutboundAt != nil && now.Sub(*ws.LastOutboundAt) < s.Cfg.MinInterval {
		s.Log.Info().Str("workspace", ws.Hash).Msg("skipping workspace, rate gate")
		tickSkips.Inc()
		return nil, nil
	}

	upload, err := repo.FirstActiveUpload(ctx, s.DB, ws.Hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	counts, err := repo.CountItemsByState(ctx, s.DB, upload.ID)
	if err != nil {
		return nil, err
	}
	queued := counts[domain.ItemStateQueued]
	adding := counts[domain.ItemStateAdding]
	waiting := counts[domain.ItemStateWaitingCheck] + counts[domain.ItemStateWaitingLegacy]

	var results []ItemResult
	switch {
	case queued > 0 || adding > 0:
		results, err = s.runAddition(ctx, ws, upload, queued)
	case waiting > 0:
		results, err = s.runChecking(ctx, ws, upload, waiting)
	default:
		// Nothing in flight; the aggregate below settles the status.
	}
	if err != nil {
		return results, err
	}

	if aggErr := s.Aggregator.Recompute(ctx, upload.ID); aggErr != nil {
		s.Log.Error().Err(aggErr).Str("upload_id", upload.ID).Msg("aggregation failed")
	}
	return results, nil
}

// runAddition drains queued items in row order within the catch-up budget.
func (s *Scheduler) runAddition(ctx context.Context, ws *domain.Workspace, upload *domain.Upload, queued int) ([]ItemResult, error) {
	s.Log.Info().
		Str("workspace", ws.Hash).
		Str("upload_id", upload.ID).
		Int("queued", queued).
		Msg("addition phase")

	if upload.Status != domain.UploadStatusRunning {
		if err := repo.UpdateUploadStatus(ctx, s.DB, upload.ID, domain.UploadStatusRunning); err != nil {
			return nil, err
		}
	}

	budget := s.additionBudget(ws)
	results := make([]ItemResult, 0, budget)
	for done := 0; done < budget; done++ {
		item, err := repo.NextQueuedItem(ctx, s.DB, upload.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return results, err
		}

		res := s.Machine.Submit(ctx, ws, upload, item)
		observeItemResult(res)
		results = append(results, res)

		if res.Success {
			at := s.now()
			if err := repo.TouchOutbound(ctx, s.DB, ws.Hash, at, true); err != nil {
				s.Log.Warn().Err(err).Str("workspace", ws.Hash).Msg("outbound stamp failed")
			} else {
				ws.LastOutboundAt = &at
				ws.LastAdditionAt = &at
			}
		}

		if done+1 < budget {
			s.sleep(s.Cfg.InterItemDelay)
		}
	}
	return results, nil
}

// additionBudget converts elapsed quiet time into an item allowance:
// one item per MinInterval elapsed, capped at MaxItemsPerTick. A workspace
// that has never called out gets the full allowance.
func (s *Scheduler) additionBudget(ws *domain.Workspace) int {
	if ws.LastOutboundAt == nil {
		return s.Cfg.MaxItemsPerTick
	}
	elapsed := s.now().Sub(*ws.LastOutboundAt)
	n := int(elapsed / s.Cfg.MinInterval)
	if n > s.Cfg.MaxItemsPerTick {
		n = s.Cfg.MaxItemsPerTick
	}
	if n < 0 {
		n = 0
	}
	return n
}

// runChecking polls a batch of waiting items in parallel once the settle
// period after the last addition has passed.
func (s *Scheduler) runChecking(ctx context.Context, ws *domain.Workspace, upload *domain.Upload, waiting int) ([]ItemResult, error) {
	now := s.now()
	if ws.LastAdditionAt != nil {
		if since := now.Sub(*ws.LastAdditionAt); since < s.Cfg.CheckDelay {
			s.Log.Info().
				Str("workspace", ws.Hash).
				Dur("remaining", s.Cfg.CheckDelay-since).
				Msg("waiting for settle period before checking")
			return nil, nil
		}
	}

	s.Log.Info().
		Str("workspace", ws.Hash).
		Str("upload_id", upload.ID).
		Int("waiting", waiting).
		Msg("checking phase")

	if upload.Status != domain.UploadStatusChecking {
		if err := repo.UpdateUploadStatus(ctx, s.DB, upload.ID, domain.UploadStatusChecking); err != nil {
			return nil, err
		}
		if err := repo.MarkCheckingStarted(ctx, s.DB, ws.Hash, now); err != nil {
			s.Log.Warn().Err(err).Str("workspace", ws.Hash).Msg("checking stamp failed")
		}
	}

	batch, err := repo.ListWaitingCheckItems(ctx, s.DB, upload.ID, s.Cfg.CheckBatchSize)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}

	results := make([]ItemResult, len(batch))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)
	for i := range batch {
		i := i
		g.Go(func() error {
			res := s.Machine.Check(gctx, ws, upload, &batch[i])
			observeItemResult(res)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Scheduler) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}
