package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// singleObject asks PostgREST for one JSON object instead of an array. It
// answers 406 when zero or several rows match.
const singleObject = "application/vnd.pgrst.object+json"

// Query is a read against one table. Methods mutate and return the receiver
// so calls chain.
type Query struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	orders  []string
	limit   int
	single  bool
}

// From starts a read of table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, filters: url.Values{}}
}

// Select sets the column list. Embedded relations use alias:table(cols).
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

// Eq keeps rows whose column equals value.
func (q *Query) Eq(column string, value any) *Query {
	q.filters.Add(column, "eq."+fmt.Sprint(value))
	return q
}

// Search keeps rows where at least one of columns contains term, ignoring
// case. The term is quoted so user input cannot alter the filter.
func (q *Query) Search(term string, columns ...string) *Query {
	if len(columns) == 0 {
		return q
	}
	pattern := quote("*" + term + "*")
	conds := make([]string, len(columns))
	for i, col := range columns {
		conds[i] = col + ".ilike." + pattern
	}
	q.filters.Add("or", "("+strings.Join(conds, ",")+")")
	return q
}

// Order appends a sort key.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := ".desc"
	if ascending {
		dir = ".asc"
	}
	q.orders = append(q.orders, column+dir)
	return q
}

// Limit caps the number of rows; n <= 0 means no cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Single expects exactly one row and decodes it as an object.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

// URL returns the request URL.
func (q *Query) URL() string {
	params := make(url.Values, len(q.filters)+3)
	for k, vs := range q.filters {
		params[k] = append([]string(nil), vs...)
	}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}

	u := q.client.baseURL + "/rest/v1/" + url.PathEscape(q.table)
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// Execute sends the query and returns the raw response.
func (q *Query) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if q.single {
		req.Header.Set("Accept", singleObject)
	}
	q.client.setHeaders(ctx, req)
	return q.client.do(req)
}

// Into sends the query and decodes the body into v.
func (q *Query) Into(ctx context.Context, v any) error {
	resp, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

func quote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}
