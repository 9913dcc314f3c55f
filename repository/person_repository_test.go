package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/visionsuite/attendvision/models"
)

func strPtr(s string) *string { return &s }

func TestPersonCreateAndGet(t *testing.T) {
	repo := NewPersonRepository(testDB(t))

	person := &models.Person{PersonID: "emp-1", Name: "Ada Lovelace", Department: strPtr("engineering")}
	require.NoError(t, repo.Create(person))
	assert.Equal(t, models.PersonStatusActive, person.Status)
	assert.NotZero(t, person.CreatedAt)
	assert.NotZero(t, person.UpdatedAt)

	got, err := repo.GetByPersonID("emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)
	require.NotNil(t, got.Department)
	assert.Equal(t, "engineering", *got.Department)
}

func TestPersonCreateDuplicate(t *testing.T) {
	repo := NewPersonRepository(testDB(t))

	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-1", Name: "Ada"}))
	err := repo.Create(&models.Person{PersonID: "emp-1", Name: "Ada Again"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersonExists)
}

func TestPersonGetMissing(t *testing.T) {
	repo := NewPersonRepository(testDB(t))
	_, err := repo.GetByPersonID("emp-404")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPersonListFilters(t *testing.T) {
	repo := NewPersonRepository(testDB(t))

	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-1", Name: "Charlie", Department: strPtr("sales")}))
	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-2", Name: "Ada", Department: strPtr("engineering")}))
	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-3", Name: "Bob", Department: strPtr("engineering"), Status: models.PersonStatusInactive}))

	all, err := repo.List("", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ada", all[0].Name, "ordered by name")
	assert.Equal(t, "Bob", all[1].Name)

	active, err := repo.List(models.PersonStatusActive, "")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	eng, err := repo.List(models.PersonStatusActive, "engineering")
	require.NoError(t, err)
	require.Len(t, eng, 1)
	assert.Equal(t, "emp-2", eng[0].PersonID)
}

func TestPersonUpdate(t *testing.T) {
	repo := NewPersonRepository(testDB(t))

	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-1", Name: "Ada"}))
	require.NoError(t, repo.Update(&models.Person{
		PersonID: "emp-1",
		Name:     "Ada Lovelace",
		Email:    strPtr("ada@example.com"),
	}))

	got, err := repo.GetByPersonID("emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)
	require.NotNil(t, got.Email)
	assert.Equal(t, "ada@example.com", *got.Email)

	t.Run("missing person", func(t *testing.T) {
		err := repo.Update(&models.Person{PersonID: "emp-404", Name: "Ghost"})
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestPersonSetStatusAndCount(t *testing.T) {
	repo := NewPersonRepository(testDB(t))

	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-1", Name: "Ada"}))
	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-2", Name: "Bob"}))
	require.NoError(t, repo.SetStatus("emp-2", models.PersonStatusInactive))

	active, err := repo.Count(models.PersonStatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	total, err := repo.Count("")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	assert.ErrorIs(t, repo.SetStatus("emp-404", models.PersonStatusInactive), gorm.ErrRecordNotFound)
}

func TestPersonDelete(t *testing.T) {
	repo := NewPersonRepository(testDB(t))

	require.NoError(t, repo.Create(&models.Person{PersonID: "emp-1", Name: "Ada"}))
	require.NoError(t, repo.Delete("emp-1"))

	_, err := repo.GetByPersonID("emp-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, repo.Delete("emp-1"), gorm.ErrRecordNotFound)
}
