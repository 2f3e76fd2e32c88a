package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// tagLikeClause has no database dependency, unlike the rest of this package's
// methods (which need a live Postgres instance the pack's example repos give
// no in-process way to stand up), so it gets direct unit coverage.

func TestTagLikeClause_EmptyTagsProducesNoClause(t *testing.T) {
	clause, args := tagLikeClause(nil)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestTagLikeClause_BlankTagsAreSkipped(t *testing.T) {
	clause, args := tagLikeClause([]string{"", ""})
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestTagLikeClause_GroupsMultipleTagsWithOr(t *testing.T) {
	clause, args := tagLikeClause([]string{"doc:runbook-1", "chunk:2"})
	assert.Equal(t, "(tags LIKE ? OR tags LIKE ?)", clause)
	assert.Equal(t, []any{"%doc:runbook-1%", "%chunk:2%"}, args)
}

func TestTagLikeClause_SingleTagIsStillParenthesized(t *testing.T) {
	clause, args := tagLikeClause([]string{"doc:runbook-1"})
	assert.Equal(t, "(tags LIKE ?)", clause)
	assert.Equal(t, []any{"%doc:runbook-1%"}, args)
}
