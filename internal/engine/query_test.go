package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lowcode-backend/internal/store"
)

func TestBuildInsertSQL_DeclaredColumnsOnly(t *testing.T) {
	values := map[string]any{"id": "1", "title": "x", "hacker; DROP TABLE": 1, "createdAt": "t", "updatedAt": "t"}
	sql, params := BuildInsertSQL(&store.PostgresDialect{}, postDef(), values)

	assert.Equal(t, `INSERT INTO "Post" ("id", "title", "createdAt", "updatedAt") VALUES ($1, $2, $3, $4)`, sql)
	assert.Equal(t, []any{"1", "x", "t", "t"}, params)
}

func TestBuildUpdateSQL_NeverSetsID(t *testing.T) {
	values := map[string]any{"id": "evil", "title": "y", "updatedAt": "t"}
	sql, params := BuildUpdateSQL(&store.MySQLDialect{}, postDef(), "42", values)

	assert.Equal(t, "UPDATE `Post` SET `title` = ?, `updatedAt` = ? WHERE `id` = ?", sql)
	assert.Equal(t, []any{"y", "t", "42"}, params)
}

func TestBuildListSQL_Capped(t *testing.T) {
	sql := BuildListSQL(&store.SQLiteDialect{}, postDef())
	assert.Equal(t, "SELECT `id`, `title`, `score`, `published`, `due`, `createdAt`, `updatedAt` FROM `Post` LIMIT 100", sql)
}

func TestBuildDeleteSQL(t *testing.T) {
	sql, params := BuildDeleteSQL(&store.SQLiteDialect{}, postDef(), "7")
	assert.Equal(t, "DELETE FROM `Post` WHERE `id` = ?1", sql)
	assert.Equal(t, []any{"7"}, params)
}

func TestPlanWrite_CreateUpdateDifferences(t *testing.T) {
	values, errs := PlanWrite(postDef(), map[string]any{"title": "x", "score": 2}, true)
	assert.Empty(t, errs)
	assert.Equal(t, float64(2), values["score"])

	_, errs = PlanWrite(postDef(), map[string]any{"score": 2}, false)
	assert.Empty(t, errs, "required fields are optional on update")

	_, errs = PlanWrite(postDef(), map[string]any{"id": "x"}, false)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "immutable", errs[0].Rule)
	}
}
