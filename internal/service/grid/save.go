package grid

import (
	"fmt"
	"slices"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/google/uuid"
)

type SaveMode int

const (
	// SavePartial sends rows that changed since the last save and have an end.
	SavePartial SaveMode = iota
	// SaveClosing sends every savable row, open ones included.
	SaveClosing
)

// ParseSaveMode reads the save mode name used by the API.
func ParseSaveMode(s string) (SaveMode, error) {
	switch s {
	case staffattendance.SaveModePartial:
		return SavePartial, nil
	case staffattendance.SaveModeClosing:
		return SaveClosing, nil
	}
	return 0, fmt.Errorf("%w: save mode %q", staffattendance.ErrInvalidField, s)
}

func (m SaveMode) String() string {
	if m == SaveClosing {
		return staffattendance.SaveModeClosing
	}
	return staffattendance.SaveModePartial
}

type PendingUpsert struct {
	TrackingID string
	Content    SavedRow
	Request    staffattendance.UpsertRequest
}

// SaveBatch is what one save of one owner sends: deletions first, then upserts.
type SaveBatch struct {
	OwnerKey  string
	Owner     staffattendance.Owner
	Mode      SaveMode
	Upserts   []PendingUpsert
	Deletions []uuid.UUID
	// Ungrouped lists the tracking ids of text rows left out because they
	// have no group to be saved under.
	Ungrouped []string
}

// IsEmpty reports a batch with nothing to send.
func (b SaveBatch) IsEmpty() bool {
	return len(b.Upserts) == 0 && len(b.Deletions) == 0
}

// Requests returns the upserts in the form the attendance service takes.
func (b SaveBatch) Requests() []staffattendance.UpsertRequest {
	out := make([]staffattendance.UpsertRequest, 0, len(b.Upserts))
	for _, u := range b.Upserts {
		out = append(out, u.Request)
	}
	return out
}

// DeleteRequest splits the deletions by owner kind.
func (b SaveBatch) DeleteRequest() staffattendance.DeleteRequest {
	ids := slices.Clone(b.Deletions)
	if b.Owner.IsExternal() {
		return staffattendance.DeleteRequest{ExternalAttendanceIDs: ids}
	}
	return staffattendance.DeleteRequest{AttendanceIDs: ids}
}

// Saved is the event that confirms the batch's upserts.
func (b SaveBatch) Saved() Saved {
	rows := make([]SentRow, 0, len(b.Upserts))
	for _, u := range b.Upserts {
		rows = append(rows, SentRow{
			TrackingID:   u.TrackingID,
			AttendanceID: u.Request.AttendanceID,
			Content:      u.Content,
		})
	}
	return Saved{OwnerKey: b.OwnerKey, Rows: rows}
}

// PrepareSave computes the batch for one owner at the time of the call.
// It returns ErrSaveBlocked while an unacknowledged departure conflict exists.
func PrepareSave(s State, ownerKey string, mode SaveMode) (SaveBatch, error) {
	o, err := s.Owner(ownerKey)
	if err != nil {
		return SaveBatch{}, err
	}
	if o.Blocked() {
		return SaveBatch{}, staffattendance.ErrSaveBlocked
	}

	batch := SaveBatch{
		OwnerKey:  ownerKey,
		Owner:     o.Owner,
		Mode:      mode,
		Deletions: slices.Clone(o.PendingDeletions),
	}
	for _, row := range o.Rows {
		if o.Validation[row.TrackingID].MissingGroup() {
			batch.Ungrouped = append(batch.Ungrouped, row.TrackingID)
		}
	}
	for _, row := range SavableRows(o) {
		if mode == SavePartial && row.EndTime == "" {
			continue
		}
		content := contentOf(row)
		if saved, ok := o.LastSaved[row.TrackingID]; ok && saved == content && mode == SavePartial {
			continue
		}
		req, err := ToUpsert(row, o.Owner, s.SelectedGroupID, s.Location)
		if err != nil {
			continue
		}
		batch.Upserts = append(batch.Upserts, PendingUpsert{
			TrackingID: row.TrackingID,
			Content:    content,
			Request:    req,
		})
	}
	return batch, nil
}

// AttachIDs fills in attendance ids that rows received after the batch was
// prepared, so a queued save never creates a record twice.
func AttachIDs(s State, batch SaveBatch) SaveBatch {
	o, ok := s.Owners[batch.OwnerKey]
	if !ok {
		return batch
	}
	out := batch
	out.Upserts = slices.Clone(batch.Upserts)
	for i, u := range out.Upserts {
		if u.Request.AttendanceID != nil {
			continue
		}
		row, ok := o.Row(u.TrackingID)
		if !ok {
			continue
		}
		if id, ok := row.LiveID(); ok {
			out.Upserts[i].Request.AttendanceID = &id
		}
	}
	return out
}

// AssignIDs gives every upsert that would create a record an id of its own.
// A row that already carries a pending id from an earlier attempt keeps it,
// so resending after a lost response updates the record it created.
func AssignIDs(s State, batch SaveBatch, newID func() uuid.UUID) SaveBatch {
	o := s.Owners[batch.OwnerKey]
	out := batch
	out.Upserts = slices.Clone(batch.Upserts)
	for i, u := range out.Upserts {
		if u.Request.AttendanceID != nil {
			continue
		}
		if row, ok := o.Row(u.TrackingID); ok && row.PendingID != nil && !row.HasLiveID() {
			id := *row.PendingID
			out.Upserts[i].Request.AttendanceID = &id
			continue
		}
		id := newID()
		out.Upserts[i].Request.AttendanceID = &id
	}
	return out
}

// Assigned is the event that binds the batch's ids to their rows before the
// batch is sent.
func (b SaveBatch) Assigned() IDsAssigned {
	ids := make(map[string]uuid.UUID, len(b.Upserts))
	for _, u := range b.Upserts {
		if u.Request.AttendanceID != nil {
			ids[u.TrackingID] = *u.Request.AttendanceID
		}
	}
	return IDsAssigned{OwnerKey: b.OwnerKey, IDs: ids}
}
