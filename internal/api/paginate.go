package api

import (
	"fmt"
	"strconv"
)

const defaultItemsPerPage = 100

func parsePageQuery(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}

	tmp, err := strconv.ParseUint(v, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid page parameter '%s'", v)
	}

	return int(tmp), nil
}

// paginate returns the requested page of a sorted list, along with the
// total page count. Pages past the end are empty.
func paginate[T any](items []T, itemsPerPageQuery string, pageQuery string) ([]T, int, error) {
	itemsPerPage, err := parsePageQuery(itemsPerPageQuery, defaultItemsPerPage)
	if err != nil {
		return nil, 0, err
	}
	if itemsPerPage == 0 {
		return nil, 0, fmt.Errorf("invalid items per page")
	}

	page, err := parsePageQuery(pageQuery, 0)
	if err != nil {
		return nil, 0, err
	}

	if len(items) == 0 {
		return items, 0, nil
	}

	pageCount := (len(items) + itemsPerPage - 1) / itemsPerPage

	start := min(page*itemsPerPage, len(items))
	end := min(start+itemsPerPage, len(items))

	return items[start:end], pageCount, nil
}
