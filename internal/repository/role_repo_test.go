package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhsystem/internal/model"
)

func TestRoleRepository_RolesForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT r.name FROM user_roles`).
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Admin").AddRow("User"))

	roles, err := NewRoleRepository(mock).RolesForUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "User"}, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_Assign(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs("u-1", model.RoleUserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs("u-2", model.RoleUserID).
		WillReturnError(errors.New("fk violation"))

	repo := NewRoleRepository(mock)
	assert.NoError(t, repo.Assign(context.Background(), "u-1", model.RoleUserID))
	assert.ErrorContains(t, repo.Assign(context.Background(), "u-2", model.RoleUserID), "assign role")
	assert.NoError(t, mock.ExpectationsWereMet())
}
