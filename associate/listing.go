package associate

import (
	"context"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Reader abstracts repository reads for the list view. List filters by stage
// and applies Limit and Offset, returning the total number of matches.
type Reader interface {
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filters ListFilters) ([]Record, int, error)
}

// Service exposes the read side used by the presentation layers.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Get returns the associate for the given identifier.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of associates in the given stage, sorted by name, and
// the total number of associates in that stage. The whole stage is read and
// collated before paging so pages follow the displayed order.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Record, int, error) {
	records, total, err := s.repo.List(ctx, ListFilters{Stage: filters.Stage})
	if err != nil {
		return nil, 0, err
	}
	SortByName(records)
	return Paginate(records, filters.Offset, filters.Limit), total, nil
}

// Paginate returns records[offset:offset+limit], clamped to the slice. A limit
// of zero or less keeps everything after offset.
func Paginate(records []Record, offset, limit int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []Record{}
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end]
}

// SortByName orders records by name using Spanish collation, so accented and
// lower-case names sort where a reader expects them.
func SortByName(records []Record) {
	c := collate.New(language.Spanish)
	sort.SliceStable(records, func(i, j int) bool {
		return c.CompareString(records[i].Name, records[j].Name) < 0
	})
}
