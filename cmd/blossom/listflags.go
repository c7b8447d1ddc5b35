package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/spf13/cobra"
)

// listFlags are the search, filter, sort and range flags shared by the list
// commands. Column names are checked by the index, not here.
type listFlags struct {
	search  string
	filters []string
	sort    string
	rng     string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.search, "search", "q", "", "substring search")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "column=value[,value...] (repeatable)")
	cmd.Flags().StringVar(&f.sort, "sort", "", "column to sort by, prefix with - for descending")
	cmd.Flags().StringVar(&f.rng, "range", "", "row window start:end (end exclusive)")
}

func (f *listFlags) query() (index.ListQuery, error) {
	q := index.ListQuery{Search: f.search}

	for _, raw := range f.filters {
		filter, err := parseFilter(raw)
		if err != nil {
			return q, err
		}
		q.Filters = append(q.Filters, filter)
	}

	if f.sort != "" {
		q.Sort = parseSort(f.sort)
	}

	if f.rng != "" {
		r, err := parseRange(f.rng)
		if err != nil {
			return q, err
		}
		q.Range = r
	}
	return q, nil
}

func parseFilter(raw string) (index.Filter, error) {
	column, values, ok := strings.Cut(raw, "=")
	column = strings.TrimSpace(column)
	if !ok || column == "" || values == "" {
		return index.Filter{}, fmt.Errorf("invalid filter %q: expected column=value[,value...]", raw)
	}

	filter := index.Filter{Column: column}
	for _, v := range strings.Split(values, ",") {
		filter.Values = append(filter.Values, strings.TrimSpace(v))
	}
	return filter, nil
}

func parseSort(raw string) *index.Sort {
	if column, ok := strings.CutPrefix(raw, "-"); ok {
		return &index.Sort{Column: column, Descending: true}
	}
	return &index.Sort{Column: raw}
}

func parseRange(raw string) (*index.Range, error) {
	startStr, endStr, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("invalid range %q: expected start:end", raw)
	}
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", endStr, err)
	}
	return &index.Range{Start: start, End: end}, nil
}
