package store

import (
	"tradeproof/pkg/types"

	sq "github.com/Masterminds/squirrel"
)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// ownedBy returns the ownership predicate every scoped query starts with.
// An empty scope is rejected before any SQL is built.
func ownedBy(scope types.Scope, extra ...sq.Sqlizer) (sq.And, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	where := sq.And{sq.Eq{"user_id": scope.UserID}}
	return append(where, extra...), nil
}
