package staffattendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/calendar"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/savequeue"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/sse"
	"github.com/cmlabs-hris/staff-attendance-go/internal/service/grid"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type QueueStatusData struct {
	OwnerKey string `json:"owner_key"`
	Status   string `json:"status"`
}

type SaveResultData struct {
	OwnerKey string `json:"owner_key"`
	Error    string `json:"error,omitempty"`
}

func sessionTopic(id uuid.UUID) string {
	return "session:" + id.String()
}

func ownerTopic(key string) string {
	return "owner:" + key
}

type session struct {
	id      uuid.UUID
	unitID  uuid.UUID
	dates   staffattendance.DateRange
	groupID *uuid.UUID

	mu      sync.Mutex
	state   grid.State
	touched time.Time
	closed  bool
}

type SessionOption func(*SessionServiceImpl)

// WithAutoSave makes every successful edit enqueue a partial save of the
// edited owner.
func WithAutoSave(enabled bool) SessionOption {
	return func(s *SessionServiceImpl) {
		s.autoSave = enabled
	}
}

// WithIdleTTL sets how long a session may go untouched before EvictIdle closes it.
func WithIdleTTL(ttl time.Duration) SessionOption {
	return func(s *SessionServiceImpl) {
		s.idleTTL = ttl
	}
}

// WithAllocator replaces the tracking id allocator.
func WithAllocator(alloc grid.IDAllocator) SessionOption {
	return func(s *SessionServiceImpl) {
		s.reducer = grid.NewReducer(alloc)
	}
}

// WithSaveTimeout bounds each queued save.
func WithSaveTimeout(d time.Duration) SessionOption {
	return func(s *SessionServiceImpl) {
		s.saveTimeout = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionServiceImpl) {
		s.now = now
	}
}

// SessionServiceImpl keeps grid editing sessions in memory. Each session's
// state only changes through the grid reducer, under the session's lock.
type SessionServiceImpl struct {
	attendance  staffattendance.StaffAttendanceService
	calendar    calendar.Provider
	hub         *sse.Hub
	queue       *savequeue.Queue
	reducer     *grid.Reducer
	loc         *time.Location
	idleTTL     time.Duration
	autoSave    bool
	saveTimeout time.Duration
	now         func() time.Time
	newID       func() uuid.UUID

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// NewGridSessionService returns a service with no open sessions.
func NewGridSessionService(
	attendance staffattendance.StaffAttendanceService,
	cal calendar.Provider,
	hub *sse.Hub,
	loc *time.Location,
	opts ...SessionOption,
) *SessionServiceImpl {
	s := &SessionServiceImpl{
		attendance:  attendance,
		calendar:    cal,
		hub:         hub,
		reducer:     grid.NewReducer(grid.NewULIDAllocator()),
		loc:         loc,
		idleTTL:     30 * time.Minute,
		saveTimeout: 30 * time.Second,
		now:         time.Now,
		newID:       uuid.New,
		sessions:    make(map[uuid.UUID]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = savequeue.New(
		savequeue.WithTaskTimeout(s.saveTimeout),
		savequeue.WithStatusFunc(func(owner string, status savequeue.Status) {
			hub.Publish(ownerTopic(owner), sse.Event{
				Event: staffattendance.EventQueueStatus,
				Data:  QueueStatusData{OwnerKey: owner, Status: string(status)},
			})
		}),
	)
	return s
}

// Open implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Open(ctx context.Context, req staffattendance.OpenSessionRequest) (staffattendance.SessionResponse, error) {
	dates, err := req.Validate()
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}

	res, err := s.attendance.Fetch(ctx, req.UnitID, dates)
	if err != nil {
		return staffattendance.SessionResponse{}, fmt.Errorf("failed to fetch attendances: %w", err)
	}

	days := s.calendar.OperationalDays(req.UnitID, dates.Start, dates.End)
	state := grid.NewState(days, s.loc, req.GroupID, req.Editing)
	state, err = s.reducer.Reduce(state, grid.ServerDataArrived{Owners: ownerData(res, req.GroupID)})
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}

	sess := &session{
		id:      s.newID(),
		unitID:  req.UnitID,
		dates:   dates,
		groupID: req.GroupID,
		state:   state,
		touched: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	slog.Info("Grid session opened",
		"session_id", sess.id, "unit_id", req.UnitID, "start", dates.Start, "end", dates.End,
		"owners", len(state.Owners), "editing", req.Editing)

	return s.view(sess), nil
}

// ownerData splits a fetch result per owner. With a group selected only the
// group's staff and the external persons recorded in it are listed.
func ownerData(res staffattendance.FetchResult, groupID *uuid.UUID) []grid.OwnerData {
	var owners []grid.OwnerData
	for _, m := range res.Staff {
		if groupID != nil && !slices.Contains(m.GroupIDs, *groupID) {
			continue
		}
		owners = append(owners, grid.OwnerData{
			Owner:       staffattendance.EmployeeOwner(m.EmployeeID),
			Name:        m.Name(),
			Attendances: m.Attendances,
		})
	}

	external := map[string]int{}
	for _, a := range res.ExternalStaff {
		if a.ExternalName == nil || (groupID != nil && a.GroupID != *groupID) {
			continue
		}
		owner := a.Owner()
		i, ok := external[owner.Key()]
		if !ok {
			i = len(owners)
			external[owner.Key()] = i
			owners = append(owners, grid.OwnerData{Owner: owner, Name: owner.ExternalName})
		}
		owners[i].Attendances = append(owners[i].Attendances, a)
	}
	return owners
}

func (s *SessionServiceImpl) lookup(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, staffattendance.ErrSessionNotFound
	}
	return sess, nil
}

// apply reduces one event into the session and notifies subscribers.
func (s *SessionServiceImpl) apply(sess *session, e grid.Event) error {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return staffattendance.ErrSessionClosed
	}
	next, err := s.reducer.Reduce(sess.state, e)
	if err != nil {
		sess.mu.Unlock()
		return err
	}
	sess.state = next
	sess.touched = s.now()
	sess.mu.Unlock()

	s.hub.Publish(sessionTopic(sess.id), sse.Event{Event: staffattendance.EventUpdated})
	return nil
}

// edit applies a user event. Edits are only accepted in editing mode.
func (s *SessionServiceImpl) edit(sessionID uuid.UUID, ownerKey string, e grid.Event) (staffattendance.SessionResponse, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}

	sess.mu.Lock()
	editing := sess.state.Editing
	sess.mu.Unlock()
	if !editing {
		return staffattendance.SessionResponse{}, staffattendance.ErrNotEditing
	}

	if err := s.apply(sess, e); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	if s.autoSave {
		go s.autosave(sess, ownerKey)
	}
	return s.view(sess), nil
}

func (s *SessionServiceImpl) autosave(sess *session, ownerKey string) {
	err := s.save(context.Background(), sess, ownerKey, grid.SavePartial)
	if err != nil && !errors.Is(err, staffattendance.ErrSaveBlocked) {
		slog.Warn("Autosave failed", "session_id", sess.id, "owner", ownerKey, "error", err)
	}
}

// Get implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Get(ctx context.Context, sessionID uuid.UUID) (staffattendance.SessionResponse, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}
	return s.view(sess), nil
}

// SetEditing implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) SetEditing(ctx context.Context, sessionID uuid.UUID, editing bool) (staffattendance.SessionResponse, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}

	sess.mu.Lock()
	wasEditing := sess.state.Editing
	sess.mu.Unlock()

	if wasEditing && !editing {
		if err := s.save(ctx, sess, "", grid.SaveClosing); err != nil {
			return staffattendance.SessionResponse{}, err
		}
	}
	if err := s.apply(sess, grid.ToggleEditing{Editing: editing}); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	if wasEditing && !editing {
		if err := s.refresh(ctx, sess); err != nil {
			return staffattendance.SessionResponse{}, err
		}
	}
	return s.view(sess), nil
}

// EditRow implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) EditRow(ctx context.Context, req staffattendance.EditRowRequest) (staffattendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	return s.edit(req.SessionID, req.OwnerKey, grid.UserEditedField{
		OwnerKey:   req.OwnerKey,
		TrackingID: req.TrackingID,
		Field:      req.Field,
		Value:      req.Value,
	})
}

// StartArrival implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) StartArrival(ctx context.Context, req staffattendance.StartArrivalRequest) (staffattendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	return s.edit(req.SessionID, req.OwnerKey, grid.StartArrival{
		OwnerKey:  req.OwnerKey,
		Date:      req.Date,
		StartTime: req.StartTime,
	})
}

// Unlink implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Unlink(ctx context.Context, req staffattendance.UnlinkRequest) (staffattendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	side, ok := grid.ParseSide(req.Side)
	if !ok {
		return staffattendance.SessionResponse{}, fmt.Errorf("%w: side %q", staffattendance.ErrInvalidField, req.Side)
	}
	return s.edit(req.SessionID, req.OwnerKey, grid.UnlinkOvernight{
		OwnerKey:   req.OwnerKey,
		TrackingID: req.TrackingID,
		Side:       side,
	})
}

// Acknowledge implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Acknowledge(ctx context.Context, sessionID uuid.UUID, ownerKey string) (staffattendance.SessionResponse, error) {
	return s.edit(sessionID, ownerKey, grid.AcknowledgeWarning{OwnerKey: ownerKey})
}

// Refresh implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Refresh(ctx context.Context, sessionID uuid.UUID) (staffattendance.SessionResponse, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}
	if err := s.refresh(ctx, sess); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	return s.view(sess), nil
}

func (s *SessionServiceImpl) refresh(ctx context.Context, sess *session) error {
	res, err := s.attendance.Fetch(ctx, sess.unitID, sess.dates)
	if err != nil {
		return fmt.Errorf("failed to fetch attendances: %w", err)
	}
	return s.apply(sess, grid.ServerDataArrived{Owners: ownerData(res, sess.groupID)})
}

// Save implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Save(ctx context.Context, sessionID uuid.UUID, req staffattendance.SaveRequest) (staffattendance.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	mode, err := grid.ParseSaveMode(req.Mode)
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}

	sess, err := s.lookup(sessionID)
	if err != nil {
		return staffattendance.SessionResponse{}, err
	}

	sess.mu.Lock()
	editing := sess.state.Editing
	sess.mu.Unlock()
	if !editing {
		return staffattendance.SessionResponse{}, staffattendance.ErrNotEditing
	}

	if err := s.save(ctx, sess, req.OwnerKey, mode); err != nil {
		return staffattendance.SessionResponse{}, err
	}
	return s.view(sess), nil
}

type queuedSave struct {
	ownerKey string
	done     <-chan error
}

// save enqueues one batch per owner (or only ownerKey's), waits for all of
// them and then refreshes the session. Blocked owners are skipped by partial
// saves of the whole session and reported otherwise. A closing save also
// fails while rows wait for a group, so the session is not torn down.
func (s *SessionServiceImpl) save(ctx context.Context, sess *session, ownerKey string, mode grid.SaveMode) error {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return staffattendance.ErrSessionClosed
	}
	keys := sess.state.OwnerKeys()
	if ownerKey != "" {
		keys = []string{ownerKey}
	}

	var (
		blocked   []string
		ungrouped []string
		queued    []queuedSave
	)
	for _, key := range keys {
		batch, err := grid.PrepareSave(sess.state, key, mode)
		if errors.Is(err, staffattendance.ErrSaveBlocked) {
			blocked = append(blocked, key)
			continue
		}
		if err != nil {
			sess.mu.Unlock()
			return err
		}
		if mode == grid.SaveClosing && len(batch.Ungrouped) > 0 {
			ungrouped = append(ungrouped, key)
		}
		if batch.IsEmpty() {
			continue
		}
		done := s.queue.Enqueue(key, "save "+mode.String(), s.saveTask(sess, batch))
		queued = append(queued, queuedSave{ownerKey: key, done: done})
	}
	sess.touched = s.now()
	sess.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queued {
		g.Go(func() error {
			select {
			case err := <-q.done:
				if err != nil {
					return fmt.Errorf("save %s: %w", q.ownerKey, err)
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err := g.Wait()

	if len(queued) > 0 {
		if rerr := s.refresh(ctx, sess); rerr != nil {
			slog.Warn("Refresh after save failed", "session_id", sess.id, "error", rerr)
		}
	}
	if err != nil {
		return err
	}

	var errs []error
	if len(blocked) > 0 && (ownerKey != "" || mode == grid.SaveClosing) {
		errs = append(errs, fmt.Errorf("%w: %s", staffattendance.ErrSaveBlocked, strings.Join(blocked, ", ")))
	}
	if len(ungrouped) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", staffattendance.ErrGroupRequired, strings.Join(ungrouped, ", ")))
	}
	return errors.Join(errs...)
}

// saveTask sends one batch: deletions first, then the upserts. On failure the
// last-saved snapshot is left alone so the next save resends the rows.
func (s *SessionServiceImpl) saveTask(sess *session, batch grid.SaveBatch) savequeue.Task {
	return func(ctx context.Context) error {
		sess.mu.Lock()
		b := grid.AttachIDs(sess.state, batch)
		b = grid.AssignIDs(sess.state, b, s.newID)
		sess.mu.Unlock()

		// rows know their new ids before the upsert goes out
		err := s.apply(sess, b.Assigned())
		if err == nil {
			err = s.send(ctx, sess, b)
		}

		result := SaveResultData{OwnerKey: b.OwnerKey}
		event := staffattendance.EventSaved
		if err != nil {
			result.Error = err.Error()
			event = staffattendance.EventSaveFailed
		}
		s.hub.Publish(sessionTopic(sess.id), sse.Event{Event: event, Data: result})
		return err
	}
}

func (s *SessionServiceImpl) send(ctx context.Context, sess *session, batch grid.SaveBatch) error {
	if len(batch.Deletions) > 0 {
		var (
			sent []uuid.UUID
			errs []error
		)
		for _, r := range s.attendance.Delete(ctx, batch.DeleteRequest()) {
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", r.ID, r.Err))
				continue
			}
			sent = append(sent, r.ID)
		}
		if len(sent) > 0 {
			if err := s.apply(sess, grid.DeletionsSent{OwnerKey: batch.OwnerKey, IDs: sent}); err != nil {
				return err
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	if len(batch.Upserts) > 0 {
		if err := s.attendance.Upsert(ctx, batch.Requests()); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if err := s.apply(sess, batch.Saved()); err != nil {
			return err
		}
	}

	slog.Info("Attendances saved",
		"session_id", sess.id, "owner", batch.OwnerKey, "mode", batch.Mode.String(),
		"upserts", len(batch.Upserts), "deletions", len(batch.Deletions))
	return nil
}

// Close implements staffattendance.GridSessionService.
func (s *SessionServiceImpl) Close(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	editing := sess.state.Editing
	sess.mu.Unlock()

	if editing {
		if err := s.save(ctx, sess, "", grid.SaveClosing); err != nil {
			return err
		}
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()

	s.hub.Publish(sessionTopic(sessionID), sse.Event{Event: staffattendance.EventClosed})
	slog.Info("Grid session closed", "session_id", sessionID)
	return nil
}

// Subscribe implements staffattendance.GridSessionService. Queue status
// events cover the owners known when subscribing.
func (s *SessionServiceImpl) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan staffattendance.SessionEvent, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	topics := []string{sessionTopic(sessionID)}
	for _, key := range sess.state.OwnerKeys() {
		topics = append(topics, ownerTopic(key))
	}
	sess.mu.Unlock()

	stream := s.hub.Stream(ctx, topics...)
	slog.Debug("Grid session subscribed", "session_id", sessionID,
		"subscribers", s.hub.SubscriberCount(sessionTopic(sessionID)))
	out := make(chan staffattendance.SessionEvent)
	go func() {
		defer close(out)
		for e := range stream {
			select {
			case out <- staffattendance.SessionEvent{Type: e.Event, Data: e.Data}:
			case <-ctx.Done():
				for range stream {
				}
				return
			}
		}
	}()
	return out, nil
}

// RefreshAll refreshes every open session.
func (s *SessionServiceImpl) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, sess := range s.snapshot() {
		if err := s.refresh(ctx, sess); err != nil && !errors.Is(err, staffattendance.ErrSessionClosed) {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.id, err))
		}
	}
	return errors.Join(errs...)
}

// EvictIdle closes sessions untouched for longer than the idle TTL. A session
// whose closing save fails stays open.
func (s *SessionServiceImpl) EvictIdle(ctx context.Context) error {
	cutoff := s.now().Add(-s.idleTTL)

	var errs []error
	for _, sess := range s.snapshot() {
		sess.mu.Lock()
		idle := sess.touched.Before(cutoff)
		sess.mu.Unlock()
		if !idle {
			continue
		}
		if err := s.Close(ctx, sess.id); err != nil && !errors.Is(err, staffattendance.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.id, err))
			continue
		}
		slog.Info("Idle grid session evicted", "session_id", sess.id)
	}
	return errors.Join(errs...)
}

// Shutdown closes every session, then stops the save queue once in-flight
// saves have finished.
func (s *SessionServiceImpl) Shutdown(ctx context.Context) error {
	sessions := s.snapshot()
	slog.Info("Shutting down grid sessions", "sessions", len(sessions), "subscribers", s.hub.TotalSubscribers())

	var errs []error
	for _, sess := range sessions {
		if err := s.Close(ctx, sess.id); err != nil && !errors.Is(err, staffattendance.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.id, err))
		}
	}
	s.queue.Close()
	if err := s.queue.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *SessionServiceImpl) snapshot() []*session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
