package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/repository/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	unitID   uuid.UUID
	groupID  uuid.UUID
	employee uuid.UUID
}

func seed(t *testing.T, setup *TestDatabaseSetup) fixture {
	t.Helper()
	ctx := context.Background()

	f := fixture{unitID: uuid.New(), groupID: uuid.New(), employee: uuid.New()}
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO units (id, name) VALUES ($1, 'Sunflower')`, []any{f.unitID}},
		{`INSERT INTO unit_groups (id, unit_id, name) VALUES ($1, $2, 'Bees')`, []any{f.groupID, f.unitID}},
		{`INSERT INTO employees (id, first_name, last_name) VALUES ($1, 'Ada', 'Lovelace')`, []any{f.employee}},
		{`INSERT INTO unit_staff_memberships (employee_id, group_id) VALUES ($1, $2)`, []any{f.employee, f.groupID}},
	}
	for _, s := range stmts {
		_, err := setup.DB.Exec(ctx, s.sql, s.args...)
		require.NoError(t, err)
	}
	return f
}

func TestStaffAttendanceRepository(t *testing.T) {
	setup := NewTestDatabase(t)
	f := seed(t, setup)
	repo := postgresql.NewStaffAttendanceRepository(setup.DB)
	ctx := context.Background()

	monday := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	staff, err := repo.ListStaff(ctx, f.unitID)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, f.employee, staff[0].EmployeeID)
	assert.Equal(t, []uuid.UUID{f.groupID}, staff[0].GroupIDs)

	exists, err := repo.GroupExists(ctx, f.groupID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.GroupExists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	departed := monday.Add(16 * time.Hour)
	saved, err := repo.Upsert(ctx, staffattendance.Attendance{
		ID:         uuid.New(),
		EmployeeID: &f.employee,
		GroupID:    f.groupID,
		Type:       staffattendance.TypePresent,
		Arrived:    monday.Add(8 * time.Hour),
		Departed:   &departed,
	})
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	name := "Sam Substitute"
	external, err := repo.UpsertExternal(ctx, staffattendance.Attendance{
		ID:           uuid.New(),
		ExternalName: &name,
		GroupID:      f.groupID,
		Type:         staffattendance.TypeTraining,
		Arrived:      monday.Add(9 * time.Hour),
	})
	require.NoError(t, err)

	week := monday.AddDate(0, 0, 7)
	list, err := repo.ListByUnit(ctx, f.unitID, monday, week)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Nil(t, list[0].ExternalName)
	assert.True(t, departed.Equal(*list[0].Departed))

	ext, err := repo.ListExternalByUnit(ctx, f.unitID, monday, week)
	require.NoError(t, err)
	require.Len(t, ext, 1)
	assert.Equal(t, name, *ext[0].ExternalName)
	assert.Nil(t, ext[0].Departed)

	// an open attendance keeps overlapping later ranges
	ext, err = repo.ListExternalByUnit(ctx, f.unitID, week, week.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, ext, 1)

	list, err = repo.ListByUnit(ctx, f.unitID, week, week.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, list)

	saved.Type = staffattendance.TypeOtherWork
	_, err = repo.Upsert(ctx, saved)
	require.NoError(t, err)
	list, err = repo.ListByUnit(ctx, f.unitID, monday, week)
	require.NoError(t, err)
	assert.Equal(t, staffattendance.TypeOtherWork, list[0].Type)

	// ids never move between owners
	other := uuid.New()
	_, err = setup.DB.Exec(ctx, `INSERT INTO employees (id, first_name, last_name) VALUES ($1, 'Grace', 'Hopper')`, other)
	require.NoError(t, err)
	stolen := saved
	stolen.EmployeeID = &other
	_, err = repo.Upsert(ctx, stolen)
	assert.ErrorIs(t, err, staffattendance.ErrAttendanceNotFound)
	otherName := "Someone Else"
	movedExternal := external
	movedExternal.ExternalName = &otherName
	_, err = repo.UpsertExternal(ctx, movedExternal)
	assert.ErrorIs(t, err, staffattendance.ErrAttendanceNotFound)
	list, err = repo.ListByUnit(ctx, f.unitID, monday, week)
	require.NoError(t, err)
	assert.Equal(t, f.employee, *list[0].EmployeeID)

	require.NoError(t, repo.Delete(ctx, saved.ID))
	assert.ErrorIs(t, repo.Delete(ctx, saved.ID), staffattendance.ErrAttendanceNotFound)
	require.NoError(t, repo.DeleteExternal(ctx, external.ID))
	assert.ErrorIs(t, repo.DeleteExternal(ctx, external.ID), staffattendance.ErrAttendanceNotFound)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	setup := NewTestDatabase(t)
	f := seed(t, setup)
	repo := postgresql.NewStaffAttendanceRepository(setup.DB)
	ctx := context.Background()
	monday := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := postgresql.WithTransaction(ctx, setup.DB, func(ctx context.Context) error {
		_, err := repo.Upsert(ctx, staffattendance.Attendance{
			ID:         uuid.New(),
			EmployeeID: &f.employee,
			GroupID:    f.groupID,
			Type:       staffattendance.TypePresent,
			Arrived:    monday,
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := repo.ListByUnit(ctx, f.unitID, monday.Add(-8*time.Hour), monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, list)
}
