package grid

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

// Event is anything that changes the grid.
type Event interface {
	event()
}

// OwnerData is one owner's part of a server snapshot.
type OwnerData struct {
	Owner       staffattendance.Owner
	Name        string
	Attendances []staffattendance.Attendance
}

// ServerDataArrived replaces the server snapshot and reconciles every owner.
type ServerDataArrived struct {
	Owners []OwnerData
}

// UserEditedField sets one cell of a row.
type UserEditedField struct {
	OwnerKey   string
	TrackingID string
	Field      string
	Value      string
}

// StartArrival begins a new arrival on a day, filling the day's placeholder
// when there is one.
type StartArrival struct {
	OwnerKey  string
	Date      caltime.Date
	StartTime string
}

// UnlinkOvernight splits a multi-day row at midnight. Side keeps the row's identity.
type UnlinkOvernight struct {
	OwnerKey   string
	TrackingID string
	Side       Side
}

// ToggleEditing enters or leaves editing mode.
type ToggleEditing struct {
	Editing bool
}

// AcknowledgeWarning lets an owner with a departure lock problem be saved anyway.
type AcknowledgeWarning struct {
	OwnerKey string
}

// DeletionsSent drops ids the server has confirmed deleted.
type DeletionsSent struct {
	OwnerKey string
	IDs      []uuid.UUID
}

// IDsAssigned records, by tracking id, the ids a save is about to create
// records under. A refresh that sees those records before the save returns
// attaches them to the right rows.
type IDsAssigned struct {
	OwnerKey string
	IDs      map[string]uuid.UUID
}

// Saved confirms that the server accepted the given row contents.
type Saved struct {
	OwnerKey string
	Rows     []SentRow
}

// SentRow is one upserted row. AttendanceID is the id the record was saved
// under; a row that had none is bound to it.
type SentRow struct {
	TrackingID   string
	AttendanceID *uuid.UUID
	Content      SavedRow
}

func (ServerDataArrived) event()  {}
func (UserEditedField) event()    {}
func (StartArrival) event()       {}
func (UnlinkOvernight) event()    {}
func (ToggleEditing) event()      {}
func (AcknowledgeWarning) event() {}
func (DeletionsSent) event()      {}
func (IDsAssigned) event()        {}
func (Saved) event()              {}

// Reducer applies events to a State. It never modifies the state it is given.
type Reducer struct {
	alloc IDAllocator
}

// NewReducer creates a Reducer that takes fresh tracking ids from alloc.
func NewReducer(alloc IDAllocator) *Reducer {
	return &Reducer{alloc: alloc}
}

// Reduce returns the state after e. On error the given state is returned.
func (r *Reducer) Reduce(s State, e Event) (State, error) {
	switch e := e.(type) {
	case ServerDataArrived:
		return r.serverDataArrived(s, e), nil
	case UserEditedField:
		return r.editField(s, e)
	case StartArrival:
		return r.startArrival(s, e)
	case UnlinkOvernight:
		return r.unlink(s, e)
	case ToggleEditing:
		next := s.withOwners()
		next.Editing = e.Editing
		return next, nil
	case AcknowledgeWarning:
		return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
			if o.HasStructuralError() {
				o.Acknowledged = true
			}
			return o, nil
		})
	case DeletionsSent:
		return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
			o.PendingDeletions = slices.DeleteFunc(o.PendingDeletions, func(id uuid.UUID) bool {
				return slices.Contains(e.IDs, id)
			})
			return o, nil
		})
	case IDsAssigned:
		return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
			for trackingID, id := range e.IDs {
				i := indexOf(o.Rows, trackingID)
				if i < 0 || o.Rows[i].HasLiveID() {
					continue
				}
				o.Rows[i].PendingID = &id
			}
			return o, nil
		})
	case Saved:
		return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
			bound := false
			for _, sent := range e.Rows {
				i := indexOf(o.Rows, sent.TrackingID)
				if i < 0 {
					continue
				}
				if sent.AttendanceID != nil && !o.Rows[i].HasLiveID() && !hasLiveID(o.Rows, *sent.AttendanceID) {
					id := *sent.AttendanceID
					o.Rows[i].AttendanceID = &id
					o.Rows[i].PendingID = nil
					o.Rows[i].WasDeleted = false
					bound = true
				}
				// a refresh may already have recorded the row as saved
				if saved, ok := o.LastSaved[sent.TrackingID]; !ok || saved != contentOf(o.Rows[i]) {
					o.LastSaved[sent.TrackingID] = sent.Content
				}
			}
			if bound {
				return r.run(s, o), nil
			}
			return o, nil
		})
	}
	return s, fmt.Errorf("unknown grid event %T", e)
}

func (r *Reducer) updateOwner(s State, key string, fn func(OwnerState) (OwnerState, error)) (State, error) {
	o, err := s.Owner(key)
	if err != nil {
		return s, err
	}
	o, err = fn(o.detach())
	if err != nil {
		return s, err
	}
	next := s.withOwners()
	next.Owners[key] = o
	return next, nil
}

func (r *Reducer) run(s State, o OwnerState) OwnerState {
	return Run(o, s.OperationalDays, s.SelectedGroupID, r.alloc)
}

func (r *Reducer) serverDataArrived(s State, e ServerDataArrived) State {
	next := s.withOwners()
	seen := make(map[string]bool, len(e.Owners))

	for _, data := range e.Owners {
		key := data.Owner.Key()
		seen[key] = true

		o, ok := next.Owners[key]
		if ok {
			o = o.detach()
		} else {
			o = newOwnerState(data.Owner, data.Name)
		}
		if data.Name != "" {
			o.Name = data.Name
		}
		next.Owners[key] = r.reconcile(next, o, data.Attendances)
	}

	for _, key := range s.OwnerKeys() {
		if seen[key] {
			continue
		}
		if !s.Editing {
			delete(next.Owners, key)
			continue
		}
		next.Owners[key] = r.reconcile(next, s.Owners[key].detach(), nil)
	}
	return next
}

func (r *Reducer) reconcile(s State, o OwnerState, server []staffattendance.Attendance) OwnerState {
	o.Rows = Reconcile(ReconcileInput{
		Server:          server,
		Local:           o.Rows,
		Deleted:         o.Deleted,
		LastSaved:       o.LastSaved,
		OperationalDays: s.OperationalDays,
		Editing:         s.Editing,
		Location:        s.Location,
		Alloc:           r.alloc,
	})
	o.seedLastSaved(server, s.Location)
	return r.run(s, o)
}

func (r *Reducer) editField(s State, e UserEditedField) (State, error) {
	return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
		i := indexOf(o.Rows, e.TrackingID)
		if i < 0 {
			return o, staffattendance.ErrRowNotFound
		}
		row := o.Rows[i]
		value := strings.TrimSpace(e.Value)

		switch e.Field {
		case staffattendance.FieldStartTime:
			if row.StartTime == "" && value != "" {
				if lock := FindDepartureLock(o.Rows); lock.IsLocked(row.ArrivalDate) && lock.TrackingID != row.TrackingID {
					return o, staffattendance.ErrDepartureLocked
				}
			}
			row.StartTime = value
		case staffattendance.FieldEndTime:
			row.EndTime = value
			if row.DepartureDate == nil && value != "" {
				row.DepartureDate = datePtr(row.ArrivalDate)
			}
		case staffattendance.FieldGroupID:
			if value == "" {
				row.GroupID = nil
				break
			}
			id, err := uuid.Parse(value)
			if err != nil {
				return o, fmt.Errorf("%w: group_id %q", staffattendance.ErrInvalidField, value)
			}
			row.GroupID = &id
		case staffattendance.FieldType:
			t := staffattendance.Type(value)
			if !t.IsValid() {
				return o, fmt.Errorf("%w: type %q", staffattendance.ErrInvalidField, value)
			}
			row.Type = t
		default:
			return o, fmt.Errorf("%w: unknown field %q", staffattendance.ErrInvalidField, e.Field)
		}

		o.Rows[i] = row
		return r.run(s, o), nil
	})
}

func (r *Reducer) startArrival(s State, e StartArrival) (State, error) {
	return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
		start := strings.TrimSpace(e.StartTime)
		if start == "" {
			return o, fmt.Errorf("%w: start_time is empty", staffattendance.ErrInvalidField)
		}
		if FindDepartureLock(o.Rows).IsLocked(e.Date) {
			return o, staffattendance.ErrDepartureLocked
		}

		i := slices.IndexFunc(o.Rows, func(row FormAttendance) bool {
			return row.IsBlank() && row.AttendanceID == nil && row.ArrivalDate == e.Date
		})
		if i >= 0 {
			o.Rows[i].StartTime = start
		} else {
			row := placeholder(r.alloc.Next(), e.Date)
			row.StartTime = start
			o.Rows = append(o.Rows, row)
		}
		return r.run(s, o), nil
	})
}

func (r *Reducer) unlink(s State, e UnlinkOvernight) (State, error) {
	return r.updateOwner(s, e.OwnerKey, func(o OwnerState) (OwnerState, error) {
		rows, err := Unlink(o.Rows, e.TrackingID, e.Side, r.alloc)
		if err != nil {
			return o, err
		}
		o.Rows = rows
		return r.run(s, o), nil
	})
}

// hasLiveID reports whether some row already refers to id.
func hasLiveID(rows []FormAttendance, id uuid.UUID) bool {
	return slices.ContainsFunc(rows, func(r FormAttendance) bool {
		liveID, ok := r.LiveID()
		return ok && liveID == id
	})
}
