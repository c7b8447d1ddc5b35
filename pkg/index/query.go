package index

import (
	"context"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// ListQuery describes a paginated search over blobs or owners.
//
// Column names in Filters and Sort are checked against the allow-list of the
// listed relation before any SQL is built. Unknown columns fail the whole
// query with ErrInvalidColumn.
type ListQuery struct {
	// Search is a substring matched against the searchable text columns
	// (sha256 and type for blobs, pubkey for owners).
	Search string

	// Filters are ANDed together. A filter with one value is an equality
	// test, more than one is set membership.
	Filters []Filter

	// Sort orders the page. nil keeps the relation's default order.
	Sort *Sort

	// Range selects rows [Start, End). nil returns every matching row.
	Range *Range
}

// Filter restricts a column to one or more values.
type Filter struct {
	Column string
	Values []any
}

// Sort orders results by a single column.
type Sort struct {
	Column     string
	Descending bool
}

// Range is a half-open row window, translated to LIMIT End-Start OFFSET Start.
type Range struct {
	Start int
	End   int
}

// BlobSummary is a blob row with its owners projected into a set.
type BlobSummary struct {
	Blob
	Owners mapset.Set[string] `json:"owners"`
}

// BlobPage is one page of ListBlobs results.
type BlobPage struct {
	Items []BlobSummary
	// Total counts every row matching search and filters, ignoring Range.
	Total int64
}

// OwnerSummary is an owner with the set of blobs it holds.
type OwnerSummary struct {
	Pubkey string             `json:"pubkey"`
	Blobs  mapset.Set[string] `json:"blobs"`
}

// OwnerPage is one page of ListOwnerSummaries results.
type OwnerPage struct {
	Items []OwnerSummary
	Total int64
}

// relation describes a listable table: the columns callers may name, the
// columns searched by ListQuery.Search and the default ordering.
type relation struct {
	table        string
	allowed      map[string]string
	searchable   []string
	defaultOrder string
	tieBreaker   string
}

var blobsRelation = relation{
	table: "blobs",
	allowed: map[string]string{
		"sha256":   "sha256",
		"type":     "type",
		"size":     "size",
		"uploaded": "uploaded",
	},
	searchable:   []string{"sha256", "type"},
	defaultOrder: "uploaded DESC",
	tieBreaker:   "sha256",
}

var ownersRelation = relation{
	table: "owners",
	allowed: map[string]string{
		"pubkey": "pubkey",
	},
	searchable:   []string{"pubkey"},
	defaultOrder: "pubkey",
	tieBreaker:   "pubkey",
}

// column resolves a caller-supplied name to its SQL column. This is the
// only path by which caller strings reach query text.
func (r relation) column(name string) (string, error) {
	col, ok := r.allowed[name]
	if !ok {
		return "", fmt.Errorf("%s column %q: %w", r.table, name, ErrInvalidColumn)
	}
	return col, nil
}

type listQueryBuilder struct {
	rel   relation
	q     ListQuery
	where []string
	args  []any
	order string
}

// newListQueryBuilder validates q against rel and prepares the WHERE and
// ORDER BY clauses. Nothing is executed.
func newListQueryBuilder(rel relation, q ListQuery) (*listQueryBuilder, error) {
	b := &listQueryBuilder{rel: rel, q: q}
	if err := b.appendFilters(); err != nil {
		return nil, err
	}
	if err := b.buildOrder(); err != nil {
		return nil, err
	}
	if err := b.validateRange(); err != nil {
		return nil, err
	}
	b.appendSearch()
	return b, nil
}

func (b *listQueryBuilder) appendFilters() error {
	for _, f := range b.q.Filters {
		col, err := b.rel.column(f.Column)
		if err != nil {
			return err
		}
		switch len(f.Values) {
		case 0:
			return fmt.Errorf("filter on %q has no values: %w", f.Column, ErrInvalidQuery)
		case 1:
			b.where = append(b.where, col+" = ?")
		default:
			b.where = append(b.where, fmt.Sprintf("%s IN (%s)", col, placeholders(len(f.Values))))
		}
		b.args = append(b.args, f.Values...)
	}
	return nil
}

func (b *listQueryBuilder) appendSearch() {
	if b.q.Search == "" {
		return
	}
	pattern := "%" + escapeLike(b.q.Search) + "%"
	ors := make([]string, 0, len(b.rel.searchable))
	for _, col := range b.rel.searchable {
		ors = append(ors, col+` LIKE ? ESCAPE '\'`)
		b.args = append(b.args, pattern)
	}
	b.where = append(b.where, "("+strings.Join(ors, " OR ")+")")
}

func (b *listQueryBuilder) buildOrder() error {
	if b.q.Sort == nil {
		b.order = " ORDER BY " + b.rel.defaultOrder
		if b.rel.defaultOrder != b.rel.tieBreaker {
			b.order += ", " + b.rel.tieBreaker
		}
		return nil
	}

	col, err := b.rel.column(b.q.Sort.Column)
	if err != nil {
		return err
	}
	dir := "ASC"
	if b.q.Sort.Descending {
		dir = "DESC"
	}
	b.order = fmt.Sprintf(" ORDER BY %s %s", col, dir)
	if col != b.rel.tieBreaker {
		b.order += ", " + b.rel.tieBreaker
	}
	return nil
}

func (b *listQueryBuilder) validateRange() error {
	r := b.q.Range
	if r == nil {
		return nil
	}
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("range [%d, %d): %w", r.Start, r.End, ErrInvalidQuery)
	}
	return nil
}

func (b *listQueryBuilder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// pagination returns the LIMIT/OFFSET suffix and its arguments.
func (b *listQueryBuilder) pagination() (string, []any) {
	r := b.q.Range
	if r == nil {
		return "", nil
	}
	return " LIMIT ? OFFSET ?", []any{r.End - r.Start, r.Start}
}

// ListBlobs returns a page of blobs matching q with their owner sets.
func (idx *Index) ListBlobs(ctx context.Context, q ListQuery) (*BlobPage, error) {
	b, err := newListQueryBuilder(blobsRelation, q)
	if err != nil {
		return nil, err
	}

	page := &BlobPage{}
	where := b.whereClause()
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs"+where, b.args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count blobs: %w", err)
	}

	limit, limitArgs := b.pagination()
	rows, err := idx.db.QueryContext(ctx,
		"SELECT "+blobColumns+" FROM blobs"+where+b.order+limit,
		append(append([]any{}, b.args...), limitArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("list blobs: %w", err)
		}
		page.Items = append(page.Items, BlobSummary{Blob: *blob, Owners: mapset.NewSet[string]()})
		hashes = append(hashes, blob.SHA256)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	// Release the only connection before the owners query.
	rows.Close()

	owners, err := idx.edges(ctx, "blob", "pubkey", hashes)
	if err != nil {
		return nil, fmt.Errorf("list blob owners: %w", err)
	}
	for i := range page.Items {
		if set, ok := owners[page.Items[i].SHA256]; ok {
			page.Items[i].Owners = set
		}
	}

	return page, nil
}

// ListOwnerSummaries returns a page of distinct owners matching q with the
// set of blobs each one holds.
func (idx *Index) ListOwnerSummaries(ctx context.Context, q ListQuery) (*OwnerPage, error) {
	b, err := newListQueryBuilder(ownersRelation, q)
	if err != nil {
		return nil, err
	}

	page := &OwnerPage{}
	where := b.whereClause()
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT pubkey) FROM owners"+where, b.args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count owners: %w", err)
	}

	limit, limitArgs := b.pagination()
	pubkeys, err := idx.queryStrings(ctx,
		"SELECT pubkey FROM owners"+where+" GROUP BY pubkey"+b.order+limit,
		append(append([]any{}, b.args...), limitArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	blobs, err := idx.edges(ctx, "pubkey", "blob", pubkeys)
	if err != nil {
		return nil, fmt.Errorf("list owner blobs: %w", err)
	}
	for _, pubkey := range pubkeys {
		set, ok := blobs[pubkey]
		if !ok {
			set = mapset.NewSet[string]()
		}
		page.Items = append(page.Items, OwnerSummary{Pubkey: pubkey, Blobs: set})
	}

	return page, nil
}

// edges groups owner rows by keyCol for the given keys, collecting valCol
// into a set per key. keyCol and valCol are fixed internal names.
func (idx *Index) edges(ctx context.Context, keyCol, valCol string, keys []string) (map[string]mapset.Set[string], error) {
	out := make(map[string]mapset.Set[string], len(keys))
	for start := 0; start < len(keys); start += removeBatchSize {
		end := min(start+removeBatchSize, len(keys))
		batch := keys[start:end]

		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}

		rows, err := idx.db.QueryContext(ctx,
			fmt.Sprintf("SELECT %s, %s FROM owners WHERE %s IN (%s)", keyCol, valCol, keyCol, placeholders(len(batch))),
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var key, val string
			if err := rows.Scan(&key, &val); err != nil {
				rows.Close()
				return nil, err
			}
			set, ok := out[key]
			if !ok {
				set = mapset.NewSet[string]()
				out[key] = set
			}
			set.Add(val)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// escapeLike escapes LIKE metacharacters so s matches literally with
// ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
