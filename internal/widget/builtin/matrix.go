package builtin

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

type matrix1dData struct {
	Rows []struct {
		Key   string `json:"key"`
		Title string `json:"title"`
		Cells []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"cells"`
	} `json:"rows"`
}

// Matrix1DWidget records selected cells of pillar rows.
type Matrix1DWidget struct{}

func (Matrix1DWidget) Type() string { return "matrix1dWidget" }

func (Matrix1DWidget) Filters(w types.Widget, data json.RawMessage) ([]widget.FilterDecl, error) {
	var d matrix1dData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	var options []map[string]any
	for _, row := range d.Rows {
		options = append(options, map[string]any{"key": row.Key, "label": row.Title})
		for _, cell := range row.Cells {
			options = append(options, map[string]any{"key": cell.Key, "label": cell.Value})
		}
	}
	return []widget.FilterDecl{{
		FilterType: types.FilterList,
		Properties: map[string]any{"type": "multiselect", "options": options},
	}}, nil
}

func (Matrix1DWidget) Exportable(w types.Widget, data json.RawMessage) (*widget.ExportableDecl, error) {
	var d matrix1dData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	levels := make([]map[string]any, 0, len(d.Rows))
	for _, row := range d.Rows {
		sublevels := make([]map[string]any, 0, len(row.Cells))
		for _, cell := range row.Cells {
			sublevels = append(sublevels, map[string]any{
				"id":    fmt.Sprintf("%s-%s", row.Key, cell.Key),
				"title": cell.Value,
			})
		}
		levels = append(levels, map[string]any{
			"id":        row.Key,
			"title":     row.Title,
			"sublevels": sublevels,
		})
	}
	return &widget.ExportableDecl{
		Data: map[string]any{
			"excel": map[string]any{
				"type":   "multiple",
				"titles": []string{"Dimension", "Subdimension"},
			},
			"report": map[string]any{"levels": levels},
		},
	}, nil
}

// DeriveAttribute expects {"value": {rowKey: {cellKey: true}}}.
func (m Matrix1DWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var d matrix1dData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	var v struct {
		Value map[string]map[string]bool `json:"value"`
	}
	if err := decodeValue(m.Type(), value, &v); err != nil {
		return nil, err
	}

	values := []string{}
	rows := [][]string{}
	keys := []string{}
	for _, row := range d.Rows {
		selected := v.Value[row.Key]
		rowAdded := false
		for _, cell := range row.Cells {
			if !selected[cell.Key] {
				continue
			}
			if !rowAdded {
				values = append(values, row.Key)
				rowAdded = true
			}
			values = append(values, cell.Key)
			rows = append(rows, []string{row.Title, cell.Value})
			keys = append(keys, fmt.Sprintf("%s-%s", row.Key, cell.Key))
		}
	}

	return &widget.Derived{
		Filters: []widget.FilterValue{{Values: values}},
		Export: map[string]any{
			"excel":  map[string]any{"type": "lists", "values": rows},
			"report": map[string]any{"keys": keys},
		},
	}, nil
}

type matrix2dData struct {
	Dimensions []struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		Subdimensions []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"subdimensions"`
	} `json:"dimensions"`
	Sectors []struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Subsectors []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"subsectors"`
	} `json:"sectors"`
}

// Matrix2DWidget records cells of a dimension x sector grid.
type Matrix2DWidget struct{}

func (Matrix2DWidget) Type() string { return "matrix2dWidget" }

func (Matrix2DWidget) Filters(w types.Widget, data json.RawMessage) ([]widget.FilterDecl, error) {
	var d matrix2dData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	var dimOptions, sectorOptions []map[string]any
	for _, dim := range d.Dimensions {
		dimOptions = append(dimOptions, map[string]any{"key": dim.ID, "label": dim.Title})
		for _, sub := range dim.Subdimensions {
			dimOptions = append(dimOptions, map[string]any{"key": sub.ID, "label": sub.Title})
		}
	}
	for _, sector := range d.Sectors {
		sectorOptions = append(sectorOptions, map[string]any{"key": sector.ID, "label": sector.Title})
		for _, sub := range sector.Subsectors {
			sectorOptions = append(sectorOptions, map[string]any{"key": sub.ID, "label": sub.Title})
		}
	}
	return []widget.FilterDecl{
		{
			Key:        w.Key + "-dimensions",
			Title:      w.Title + " Dimensions",
			FilterType: types.FilterList,
			Properties: map[string]any{"type": "multiselect", "options": dimOptions},
		},
		{
			Key:        w.Key + "-sectors",
			Title:      w.Title + " Sectors",
			FilterType: types.FilterList,
			Properties: map[string]any{"type": "multiselect", "options": sectorOptions},
		},
	}, nil
}

func (Matrix2DWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return &widget.ExportableDecl{
		Data: map[string]any{
			"excel": map[string]any{
				"type":   "multiple",
				"titles": []string{"Dimension", "Subdimension", "Sector", "Subsectors"},
			},
		},
	}, nil
}

// DeriveAttribute expects {"value": {dimID: {subdimID: {sectorID: [subsectorIDs]}}}}.
func (m Matrix2DWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var d matrix2dData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	var v struct {
		Value map[string]map[string]map[string][]string `json:"value"`
	}
	if err := decodeValue(m.Type(), value, &v); err != nil {
		return nil, err
	}

	sectorTitles := map[string]string{}
	subsectorTitles := map[string]string{}
	for _, s := range d.Sectors {
		sectorTitles[s.ID] = s.Title
		for _, sub := range s.Subsectors {
			subsectorTitles[sub.ID] = sub.Title
		}
	}

	dimValues := newOrderedSet()
	sectorValues := newOrderedSet()
	rows := [][]string{}

	for _, dim := range d.Dimensions {
		for _, sub := range dim.Subdimensions {
			sectors := v.Value[dim.ID][sub.ID]
			if len(sectors) == 0 {
				continue
			}
			sectorIDs := make([]string, 0, len(sectors))
			for id := range sectors {
				sectorIDs = append(sectorIDs, id)
			}
			sort.Strings(sectorIDs)
			for _, sectorID := range sectorIDs {
				dimValues.add(dim.ID, sub.ID)
				sectorValues.add(sectorID)
				sectorValues.add(sectors[sectorID]...)

				subTitles := make([]string, 0, len(sectors[sectorID]))
				for _, ss := range sectors[sectorID] {
					subTitles = append(subTitles, labelOr(subsectorTitles, ss))
				}
				rows = append(rows, []string{
					dim.Title,
					sub.Title,
					labelOr(sectorTitles, sectorID),
					strings.Join(subTitles, ","),
				})
			}
		}
	}

	return &widget.Derived{
		Filters: []widget.FilterValue{
			{Key: w.Key + "-dimensions", Values: dimValues.items},
			{Key: w.Key + "-sectors", Values: sectorValues.items},
		},
		Export: map[string]any{
			"excel": map[string]any{"type": "lists", "values": rows},
		},
	}, nil
}

type headers []struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

type numberMatrixData struct {
	RowHeaders    headers `json:"row_headers"`
	ColumnHeaders headers `json:"column_headers"`
}

// NumberMatrixWidget records numbers in a row x column grid. It has no filters.
type NumberMatrixWidget struct{}

func (NumberMatrixWidget) Type() string { return "numberMatrixWidget" }

func (NumberMatrixWidget) Exportable(w types.Widget, data json.RawMessage) (*widget.ExportableDecl, error) {
	var d numberMatrixData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	titles := []string{}
	for _, row := range d.RowHeaders {
		for _, col := range d.ColumnHeaders {
			titles = append(titles, fmt.Sprintf("%s - %s", row.Title, col.Title))
		}
	}
	return &widget.ExportableDecl{
		Data: map[string]any{
			"excel": map[string]any{"type": "multiple", "titles": titles},
		},
	}, nil
}

// DeriveAttribute expects {"value": {rowKey: {colKey: number}}}; missing cells export as empty.
func (n NumberMatrixWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var d numberMatrixData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	var v struct {
		Value map[string]map[string]*float64 `json:"value"`
	}
	if err := decodeValue(n.Type(), value, &v); err != nil {
		return nil, err
	}

	values := []any{}
	for _, row := range d.RowHeaders {
		for _, col := range d.ColumnHeaders {
			cell := v.Value[row.Key][col.Key]
			if cell == nil {
				values = append(values, "")
				continue
			}
			values = append(values, *cell)
		}
	}
	return &widget.Derived{
		Export: map[string]any{
			"excel": map[string]any{"values": values},
		},
	}, nil
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}, items: []string{}}
}

func (s *orderedSet) add(vals ...string) {
	for _, v := range vals {
		if v == "" || s.seen[v] {
			continue
		}
		s.seen[v] = true
		s.items = append(s.items, v)
	}
}
