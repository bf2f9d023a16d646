package blocks

import (
	"cmp"
	"slices"
	"strings"

	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/models"
)

// SortKey names a sortable column.
type SortKey string

// Sortable columns.
const (
	SortKeyType        SortKey = "type"
	SortKeyDescription SortKey = "description"
	SortKeyBlocked     SortKey = "blocked"
)

var sortKeys = [3]SortKey{SortKeyType, SortKeyDescription, SortKeyBlocked}

var sortKeyLabels = map[SortKey]string{
	SortKeyType:        i18n.MsgColumnType,
	SortKeyDescription: i18n.MsgColumnDesc,
	SortKeyBlocked:     i18n.MsgColumnBlocked,
}

// Direction is a sort direction.
type Direction string

// Directions.
const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Descending {
		return Ascending
	}
	return Descending
}

// Ending renders the direction the way list widgets expect it: "ascending" or "descending".
func (d Direction) Ending() string {
	return string(d) + "ending"
}

// ParseSortKey resolves a column alias sent by the UI. Canonical keys and the localized
// column labels are both accepted, case-insensitively.
func ParseSortKey(alias string, loc Localizer) (SortKey, bool) {
	alias = strings.TrimSpace(alias)
	for _, k := range sortKeys {
		if strings.EqualFold(alias, string(k)) {
			return k, true
		}
		if loc != nil && strings.EqualFold(alias, loc.Localize(sortKeyLabels[k])) {
			return k, true
		}
	}
	return "", false
}

// SortState is the column ranking of the list. The ranking is always a permutation of
// the three sortable columns and each column remembers its last direction. Only the
// first two ranks influence row order.
type SortState struct {
	order [3]SortKey
	dirs  map[SortKey]Direction
}

// NewSortState returns the initial ranking: type descending, then description ascending.
func NewSortState() *SortState {
	return &SortState{
		order: sortKeys,
		dirs: map[SortKey]Direction{
			SortKeyType:        Descending,
			SortKeyDescription: Ascending,
			SortKeyBlocked:     Ascending,
		},
	}
}

// Toggle applies a header click. Clicking the primary column flips its direction;
// clicking any other column promotes it to primary with its remembered direction and
// shifts the others down. Unknown keys are ignored and Toggle returns false.
func (s *SortState) Toggle(key SortKey) bool {
	idx := slices.Index(s.order[:], key)
	if idx < 0 {
		return false
	}

	if idx == 0 {
		s.dirs[key] = s.dirs[key].Flip()
		return true
	}

	copy(s.order[1:idx+1], s.order[0:idx])
	s.order[0] = key
	return true
}

// Order returns the full ranking.
func (s *SortState) Order() []SortKey {
	return append([]SortKey(nil), s.order[:]...)
}

// Primary returns the rank 0 column and its direction.
func (s *SortState) Primary() (SortKey, Direction) {
	return s.order[0], s.dirs[s.order[0]]
}

// Secondary returns the rank 1 column and its direction.
func (s *SortState) Secondary() (SortKey, Direction) {
	return s.order[1], s.dirs[s.order[1]]
}

// Directions returns the primary and secondary directions.
func (s *SortState) Directions() [2]Direction {
	return [2]Direction{s.dirs[s.order[0]], s.dirs[s.order[1]]}
}

// DirectionOf returns the remembered direction of key.
func (s *SortState) DirectionOf(key SortKey) Direction {
	return s.dirs[key]
}

// Clone returns an independent copy.
func (s *SortState) Clone() *SortState {
	dirs := make(map[SortKey]Direction, len(s.dirs))
	for k, v := range s.dirs {
		dirs[k] = v
	}
	return &SortState{order: s.order, dirs: dirs}
}

// Apply stable-sorts rows in place by the primary column, then the secondary one.
func (s *SortState) Apply(rows []models.DisplayRow) {
	pk, pd := s.Primary()
	sk, sd := s.Secondary()

	slices.SortStableFunc(rows, func(a, b models.DisplayRow) int {
		if c := compareColumn(a, b, pk, pd); c != 0 {
			return c
		}
		return compareColumn(a, b, sk, sd)
	})
}

func compareColumn(a, b models.DisplayRow, key SortKey, dir Direction) int {
	c := cmp.Compare(strings.ToLower(columnValue(a, key)), strings.ToLower(columnValue(b, key)))
	if dir == Descending {
		return -c
	}
	return c
}

func columnValue(r models.DisplayRow, key SortKey) string {
	switch key {
	case SortKeyType:
		return r.Type
	case SortKeyDescription:
		return r.Description
	default:
		return r.BlockedActions
	}
}
