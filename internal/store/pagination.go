package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Order is the logical sort order requested by the caller, independent of
// paging direction.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// defaultPageLimit is used when neither Forward nor Backward specifies one.
const defaultPageLimit = 40

// Edge pairs a row with the cursor that resumes a scan immediately after
// (forward) or before (backward) it.
type Edge[T any] struct {
	Cursor string
	Node   T
}

// PageInfo reports whether more rows exist on either side of the page.
// Unlike nrfta-go-paging's lazily-evaluated function fields, every value
// here is already known once Query returns, since the Cursor Engine never
// defers total-count work.
type PageInfo struct {
	HasPreviousPage bool
	HasNextPage     bool
	StartCursor     string
	EndCursor       string
}

// Page is the result of a single Cursor Engine query.
type Page[T any] struct {
	Edges    []Edge[T]
	PageInfo PageInfo
}

// ScanRow builds one T from a single result row.
type ScanRow[T any] func(pgx.Rows) (T, error)

// CursorEngine is the generic keyset-pagination builder. Forward and
// Backward overwrite the direction, limit and cursor, so one engine can be
// re-run page by page, as All does.
type CursorEngine[T any] struct {
	schema Pageable[T]
	scan   ScanRow[T]

	baseSQL string
	args    []any

	order    Order
	backward bool
	limit    int

	cursor    *Cursor
	cursorErr error
}

// NewCursorEngine starts a query whose base SELECT is sql, for rows scanned
// by scan and ordered according to schema's composite key.
func NewCursorEngine[T any](schema Pageable[T], scan ScanRow[T], sql string) *CursorEngine[T] {
	return &CursorEngine[T]{
		schema:  schema,
		scan:    scan,
		baseSQL: sql,
		order:   OrderAsc,
	}
}

// Bind appends a positional parameter to the base SELECT.
func (e *CursorEngine[T]) Bind(arg any) *CursorEngine[T] {
	e.args = append(e.args, arg)
	return e
}

// OrderBy sets the logical order; default is OrderAsc.
func (e *CursorEngine[T]) OrderBy(order Order) *CursorEngine[T] {
	e.order = order
	return e
}

// Forward pages ascending-logical starting strictly after the row encoded
// by after ("" means from the beginning). first <= 0 uses defaultPageLimit.
func (e *CursorEngine[T]) Forward(first int, after string) *CursorEngine[T] {
	e.backward = false
	e.limit = effectiveLimit(first)
	e.setCursor(after)
	return e
}

// Backward pages ascending-logical ending strictly before the row encoded
// by before ("" means from the end). last <= 0 uses defaultPageLimit.
func (e *CursorEngine[T]) Backward(last int, before string) *CursorEngine[T] {
	e.backward = true
	e.limit = effectiveLimit(last)
	e.setCursor(before)
	return e
}

func effectiveLimit(n int) int {
	if n <= 0 {
		return defaultPageLimit
	}
	return n
}

func (e *CursorEngine[T]) setCursor(text string) {
	if text == "" {
		e.cursor = nil
		e.cursorErr = nil
		return
	}
	c, err := DecodeCursor(text)
	if err != nil {
		e.cursorErr = err
		return
	}
	e.cursor = &c
	e.cursorErr = nil
}

// sign reports the comparison operator for the keyset WHERE clause: '<' if
// paging backward through an ascending order (or forward through a
// descending one), '>' otherwise.
func (e *CursorEngine[T]) sign() string {
	if (e.order == OrderAsc) == e.backward {
		return "<"
	}
	return ">"
}

// orderDirection reports the ORDER BY token for every key (same rule as
// sign, spelled out as SQL keywords).
func (e *CursorEngine[T]) orderDirection() string {
	if (e.order == OrderAsc) == e.backward {
		return "DESC"
	}
	return "ASC"
}

// Query executes the built query against executor and produces a Page[T]
// per the keyset-pagination algorithm below.
func (e *CursorEngine[T]) Query(ctx context.Context, executor Executor) (*Page[T], error) {
	if e.cursorErr != nil {
		return nil, e.cursorErr
	}

	limit := e.limit
	if limit == 0 {
		limit = defaultPageLimit
	}

	keys := e.schema.OrderingKeys()
	sql := e.baseSQL
	args := append([]any{}, e.args...)

	if e.cursor != nil {
		whereFrag := keysetWhereRec(keys, len(args)+1, e.sign())
		sql += whereClauseJoiner(sql) + whereFrag
		args = append(args, e.cursor.values()...)
	}

	sql += " ORDER BY " + orderByClause(keys, e.orderDirection())
	sql += fmt.Sprintf(" LIMIT %d", limit+1)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, backendErr("CursorEngine.Query", err)
	}
	defer rows.Close()

	var nodes []T
	for rows.Next() {
		node, err := e.scan(rows)
		if err != nil {
			return nil, backendErr("CursorEngine.Query", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("CursorEngine.Query", err)
	}

	hasMore := len(nodes) > limit
	if hasMore {
		nodes = nodes[:limit]
	}

	edges := make([]Edge[T], len(nodes))
	for i, n := range nodes {
		c, err := e.schema.ToCursor(n).Encode()
		if err != nil {
			return nil, err
		}
		edges[i] = Edge[T]{Cursor: c, Node: n}
	}

	if e.backward {
		reverseEdges(edges)
	}

	info := PageInfo{}
	if e.backward {
		info.HasPreviousPage = hasMore
		if len(edges) > 0 {
			info.StartCursor = edges[0].Cursor
		}
	} else {
		info.HasNextPage = hasMore
		if len(edges) > 0 {
			info.EndCursor = edges[len(edges)-1].Cursor
		}
	}

	return &Page[T]{Edges: edges, PageInfo: info}, nil
}

// All drains every page forward from the beginning, returning the full
// ordered sequence of nodes. Convenience for callers that want an unpaged
// scan without hand-writing the end_cursor loop.
func (e *CursorEngine[T]) All(ctx context.Context, executor Executor, pageSize int) ([]T, error) {
	var all []T
	after := ""
	for {
		page, err := e.Forward(pageSize, after).Query(ctx, executor)
		if err != nil {
			return nil, err
		}
		for _, edge := range page.Edges {
			all = append(all, edge.Node)
		}
		if !page.PageInfo.HasNextPage {
			return all, nil
		}
		after = page.PageInfo.EndCursor
	}
}

func whereClauseJoiner(sqlSoFar string) string {
	if strings.Contains(strings.ToUpper(sqlSoFar), " WHERE ") {
		return " AND "
	}
	return " WHERE "
}

// keysetWhereRec builds the strict lexicographic tuple comparison described
// the strict lexicographic comparison: k1 sign $p OR (k1 = $p AND (k2
// sign $p+1 OR (...))).
func keysetWhereRec(keys []string, p int, sign string) string {
	if len(keys) == 1 {
		return fmt.Sprintf("%s %s $%d", keys[0], sign, p)
	}
	rest := keysetWhereRec(keys[1:], p+1, sign)
	return fmt.Sprintf("(%s %s $%d OR (%s = $%d AND (%s)))", keys[0], sign, p, keys[0], p, rest)
}

func orderByClause(keys []string, direction string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + direction
	}
	return strings.Join(parts, ", ")
}

func reverseEdges[T any](edges []Edge[T]) {
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
}
