package builtin

import (
	"encoding/json"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// organ is one node of an organigram tree.
type organ struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	Organs   []organ `json:"organs"`
	parent   *organ
}

// OrganigramWidget records nodes of an organisational tree.
type OrganigramWidget struct{}

func (OrganigramWidget) Type() string { return "organigramWidget" }

func (o OrganigramWidget) Filters(w types.Widget, data json.RawMessage) ([]widget.FilterDecl, error) {
	var root organ
	if err := decode(data, &root); err != nil {
		return nil, err
	}
	var options []map[string]any
	walkOrgans(&root, nil, func(n *organ) {
		if n.Key != "" {
			options = append(options, map[string]any{"key": n.Key, "label": n.Title})
		}
	})
	return []widget.FilterDecl{{
		FilterType: types.FilterList,
		Properties: map[string]any{"type": "multiselect", "options": options},
	}}, nil
}

func (OrganigramWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

// DeriveAttribute filters on the selected nodes and all of their ancestors so that
// filtering by a parent matches entries tagged with any descendant.
func (o OrganigramWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var root organ
	if err := decode(data, &root); err != nil {
		return nil, err
	}
	var v struct {
		Value []string `json:"value"`
	}
	if err := decodeValue(o.Type(), value, &v); err != nil {
		return nil, err
	}

	index := map[string]*organ{}
	walkOrgans(&root, nil, func(n *organ) { index[n.Key] = n })

	seen := map[string]bool{}
	values := []string{}
	titles := []string{}
	for _, key := range v.Value {
		n, ok := index[key]
		if !ok {
			if !seen[key] {
				seen[key] = true
				values = append(values, key)
				titles = append(titles, key)
			}
			continue
		}
		titles = append(titles, n.Title)
		for cur := n; cur != nil; cur = cur.parent {
			if cur.Key == "" || seen[cur.Key] {
				continue
			}
			seen[cur.Key] = true
			values = append(values, cur.Key)
		}
	}

	return &widget.Derived{
		Filters: []widget.FilterValue{{Values: values}},
		Export: map[string]any{
			"excel": map[string]any{"type": "list", "value": titles},
		},
	}, nil
}

func walkOrgans(n *organ, parent *organ, fn func(*organ)) {
	n.parent = parent
	fn(n)
	for i := range n.Organs {
		walkOrgans(&n.Organs[i], n, fn)
	}
}
