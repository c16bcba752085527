// Package queue owns the ordered collection of song requests and their
// lifecycle: pending, approved into a playback position, rejected, completed.
package queue

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/internal/filter"
	"github.com/alexlhtam/vibeq/internal/store"
)

// Engine coordinates the request lifecycle on top of the transactional
// store. Approvals append at the tail of the playback order, so the queue is
// ordered by approval time by default, not submission time.
type Engine struct {
	store  *store.Store
	filter *filter.Filter
	logger *zap.Logger
}

func NewEngine(s *store.Store, f *filter.Filter, logger *zap.Logger) *Engine {
	return &Engine{
		store:  s,
		filter: f,
		logger: logger,
	}
}

// Enqueue admits a guest submission through the content filter and stores it
// as PENDING. Returns core.ErrExplicitBlocked when policy rejects the track;
// no request is created in that case.
func (e *Engine) Enqueue(ctx context.Context, party core.PartyID, track core.Track) (*core.SongRequest, error) {
	if err := e.filter.Admit(ctx, track); err != nil {
		return nil, err
	}

	req, err := e.store.InsertRequest(ctx, party, track)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Request enqueued",
		zap.Int64("requestID", req.ID),
		zap.String("trackID", track.ID),
		zap.String("title", track.Title),
		zap.String("artist", track.Artist))
	return req, nil
}

// Approve moves a request into the playback order at the tail position. An
// absent id is a benign no-op: the host UI may race with a removal.
func (e *Engine) Approve(ctx context.Context, party core.PartyID, id int64) error {
	found, err := e.store.Approve(ctx, party, id)
	if err != nil {
		return err
	}
	if !found {
		e.logger.Debug("Approve on missing request", zap.Int64("requestID", id))
		return nil
	}

	e.logger.Info("Request approved", zap.Int64("requestID", id))
	return nil
}

// Reject marks a request REJECTED. Terminal; position is left untouched.
func (e *Engine) Reject(ctx context.Context, party core.PartyID, id int64) error {
	return e.setStatus(ctx, party, id, core.StatusRejected)
}

// Complete marks a request COMPLETED after playback. The row is kept as
// history but leaves the visible queue.
func (e *Engine) Complete(ctx context.Context, party core.PartyID, id int64) error {
	return e.setStatus(ctx, party, id, core.StatusCompleted)
}

func (e *Engine) setStatus(ctx context.Context, party core.PartyID, id int64, status core.RequestStatus) error {
	found, err := e.store.SetStatus(ctx, party, id, status)
	if err != nil {
		return err
	}
	if !found {
		e.logger.Debug("Status change on missing request",
			zap.Int64("requestID", id),
			zap.String("status", string(status)))
		return nil
	}

	e.logger.Info("Request status changed",
		zap.Int64("requestID", id),
		zap.String("status", string(status)))
	return nil
}

// Remove deletes a request outright regardless of status. Returns
// core.ErrNotFound when the id does not exist so the caller can 404.
func (e *Engine) Remove(ctx context.Context, party core.PartyID, id int64) error {
	found, err := e.store.DeleteRequest(ctx, party, id)
	if err != nil {
		return err
	}
	if !found {
		return core.ErrNotFound
	}

	e.logger.Info("Request removed", zap.Int64("requestID", id))
	return nil
}

// Reorder applies a host-supplied ordering of request ids. Unknown ids are
// skipped; approved requests omitted from the list are appended after the
// supplied ones in their previous relative order.
func (e *Engine) Reorder(ctx context.Context, party core.PartyID, orderedIDs []int64) error {
	if err := e.store.AssignOrder(ctx, party, orderedIDs); err != nil {
		return err
	}

	e.logger.Info("Queue reordered", zap.Int("suppliedIDs", len(orderedIDs)))
	return nil
}

// Shuffle randomly permutes the existing position values across the
// approved requests. The occupied position set is preserved; only which
// request holds which position changes.
func (e *Engine) Shuffle(ctx context.Context, party core.PartyID) error {
	if err := e.store.ShuffleApproved(ctx, party, rand.Perm); err != nil {
		return err
	}

	e.logger.Info("Queue shuffled")
	return nil
}

// Visible returns the queue as shown to host and guests: everything except
// COMPLETED, ordered by (position, id).
func (e *Engine) Visible(ctx context.Context, party core.PartyID) ([]core.SongRequest, error) {
	return e.store.VisibleRequests(ctx, party)
}

// Clear deletes every request of the party unconditionally.
func (e *Engine) Clear(ctx context.Context, party core.PartyID) error {
	if err := e.store.ClearRequests(ctx, party); err != nil {
		return err
	}

	e.logger.Info("Queue cleared")
	return nil
}
