package grid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	overnight := localRow("overnight", mon, "22:00", "06:00")
	overnight.DepartureDate = ptr(tue)

	cases := []struct {
		row      FormAttendance
		problems []Problem
		shown    bool
	}{
		{localRow("blank", mon, "", ""), nil, false},
		{localRow("ok", mon, "08:00", "16:00"), nil, false},
		{localRow("open", mon, "08:00", ""), nil, false},
		{overnight, nil, false},
		{localRow("no-start", mon, "", "16:00"), []Problem{ProblemMissingStart}, true},
		{localRow("bad-start", mon, "8:0", "16:00"), []Problem{ProblemInvalidStart}, true},
		{localRow("bad-end", mon, "08:00", "16"), []Problem{ProblemInvalidEnd}, true},
		{localRow("both-bad", mon, "x", "y"), []Problem{ProblemInvalidStart, ProblemInvalidEnd}, true},
		{localRow("reversed", mon, "16:00", "08:00"), []Problem{ProblemEndBeforeStart}, true},
		{localRow("zero-length", mon, "08:00", "08:00"), []Problem{ProblemEndBeforeStart}, true},
	}
	for _, c := range cases {
		got := Validate([]FormAttendance{c.row}, nil, nil, ptr(groupA))[c.row.TrackingID]
		assert.Equal(t, c.problems, got.Problems, c.row.TrackingID)
		assert.Equal(t, c.shown, got.Shown, c.row.TrackingID)
		assert.Equal(t, len(c.problems) == 0, got.Valid(), c.row.TrackingID)
	}
}

func TestValidate_DepartureLock(t *testing.T) {
	m := openMonday(uuid.New())
	w := localRow("w", wed, "08:00", "16:00")
	rows := []FormAttendance{m, w}

	got := Validate(rows, FindDepartureLock(rows), nil, ptr(groupA))

	assert.Equal(t, []Problem{ProblemDepartureLock}, got[m.TrackingID].Problems)
	assert.True(t, got[m.TrackingID].Structural())
	assert.False(t, got[m.TrackingID].Malformed())
	assert.True(t, got[w.TrackingID].Valid())

	conflict := &LockConflict{TrackingID: w.TrackingID, Reason: ConflictGroupMismatch}
	got = Validate([]FormAttendance{w}, nil, conflict, ptr(groupA))
	assert.True(t, got[w.TrackingID].Structural())
	assert.True(t, got[w.TrackingID].Shown)
}

func TestValidate_MissingGroup(t *testing.T) {
	typed := localRow("typed", mon, "08:00", "16:00")
	blank := localRow("blank", tue, "", "")
	grouped := localRow("grouped", wed, "08:00", "16:00")
	grouped.GroupID = ptr(groupB)
	rows := []FormAttendance{typed, blank, grouped}

	got := Validate(rows, nil, nil, nil)

	assert.Equal(t, []Problem{ProblemMissingGroup}, got["typed"].Problems)
	assert.True(t, got["typed"].Shown)
	assert.True(t, got["typed"].MissingGroup())
	assert.False(t, got["typed"].Malformed())
	assert.True(t, got["blank"].Valid())
	assert.True(t, got["grouped"].Valid())

	got = Validate(rows, nil, nil, ptr(groupA))
	assert.True(t, got["typed"].Valid())
}
