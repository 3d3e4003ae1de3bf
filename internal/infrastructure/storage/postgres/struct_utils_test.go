package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"foodledger/internal/core/id"
)

type auditable struct {
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

type sampleRow struct {
	ID   id.ID  `db:"id"`
	Name string `db:"name"`
	auditable
	Note   string `db:"-"`
	Hidden string
	Meta   *struct{ A int } `db:"meta"`
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[sampleRow]()

	assert.Equal(t, []string{"id", "name", "created_by", "created_at", "meta"}, cols)
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	row := sampleRow{
		ID:        id.New(),
		Name:      "flour",
		auditable: auditable{CreatedBy: "u1", CreatedAt: now},
		Note:      "ignored",
	}

	m := StructToMap(&row)

	assert.Len(t, m, 5)
	assert.Equal(t, row.ID, m["id"])
	assert.Equal(t, "u1", m["created_by"])
	assert.Equal(t, now, m["created_at"])
	assert.NotContains(t, m, "Note")

	vals := StructValues(row, []string{"name", "id"})
	assert.Equal(t, []any{"flour", row.ID}, vals)
}
