package api

import (
	"context"
	"database/sql"
	"math/big"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// MaxQueryRows caps the rows returned by a mirror query.
const MaxQueryRows = 1000

// DBHandler serves SQL over the in-memory snapshot mirror.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a handler; db may be nil when the mirror is disabled.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("db"))
}

type TablesBody struct {
	Tables []string `json:"tables" doc:"Mirror tables"`
}

func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"Read-only SQL over the polygons and loads tables" example:"SELECT name, rendered FROM polygons ORDER BY position"`
	}
}

type QueryBody struct {
	Columns   []string         `json:"columns" doc:"Column names"`
	Rows      []map[string]any `json:"rows" doc:"Query results"`
	Count     int              `json:"count" doc:"Number of rows returned"`
	Truncated bool             `json:"truncated" doc:"Whether rows were cut at the limit"`
}

// Statements a mirror query may start with. EXPLAIN is absent because
// EXPLAIN ANALYZE executes its statement.
var readVerbs = map[string]bool{
	"SELECT": true, "WITH": true, "FROM": true, "SHOW": true,
	"DESCRIBE": true, "SUMMARIZE": true, "VALUES": true, "TABLE": true,
}

// Keywords that must not appear anywhere outside quotes and comments.
var writeVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "TRUNCATE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "ATTACH": true, "DETACH": true,
	"COPY": true, "EXPORT": true, "IMPORT": true, "INSTALL": true, "LOAD": true,
	"SET": true, "RESET": true, "PRAGMA": true, "CALL": true, "USE": true,
	"CHECKPOINT": true, "VACUUM": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true,
}

// readOnly reports whether q is a single statement that cannot change the
// mirror or its configuration.
func readOnly(q string) bool {
	words, statements := scanSQL(q)
	if statements != 1 || len(words) == 0 || !readVerbs[words[0]] {
		return false
	}
	for _, w := range words[1:] {
		if writeVerbs[w] {
			return false
		}
	}
	return true
}

// scanSQL returns the upper-cased bare words of q, skipping string literals,
// quoted identifiers and comments, and the number of non-empty statements.
func scanSQL(q string) (words []string, statements int) {
	var word strings.Builder
	pending := false // current statement has content
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"':
			flush()
			pending = true
			for i++; i < len(q); i++ {
				if q[i] == c {
					if i+1 < len(q) && q[i+1] == c {
						i++
						continue
					}
					break
				}
			}
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			flush()
			for i < len(q) && q[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			flush()
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				i = len(q)
			} else {
				i += end + 3
			}
		case c == ';':
			flush()
			if pending {
				statements++
				pending = false
			}
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			word.WriteByte(c)
			pending = true
		default:
			flush()
			if c > ' ' {
				pending = true
			}
		}
	}
	flush()
	if pending {
		statements++
	}
	return words, statements
}

func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body QueryBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	if !readOnly(input.Body.Query) {
		return nil, huma.Error400BadRequest("Only read-only queries are allowed")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	out := QueryBody{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(out.Rows) == MaxQueryRows {
			out.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	out.Count = len(out.Rows)
	return &struct{ Body QueryBody }{Body: out}, nil
}

// normalize converts driver values JSON cannot carry as-is.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case *big.Int:
		return t.String()
	}
	return v
}
