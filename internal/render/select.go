package render

import (
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// Selection is emitted when a user activates an item of a click-through
// widget; the session folds it into the filter store.
type Selection struct {
	WidgetID string        `json:"widgetId"`
	Key      string        `json:"key"`
	Value    filters.Value `json:"value"`
}

// Select resolves an activated item to a filter selection. The key is the
// configured target key, then the chart's x-axis key, then "category". The
// value is the item's name, then its x-axis value, then label, then category,
// looking inside a nested "payload" object last. ok is false when
// click-through is off or no scalar value can be found.
func Select(w models.Widget, item map[string]any) (Selection, bool) {
	click := w.Config.Click
	if !click.FiltersDashboard() {
		return Selection{}, false
	}

	xKey := ""
	if w.Config.Chart != nil {
		xKey = w.Config.Chart.XAxisKey
	}
	key := click.TargetKey
	if key == "" {
		key = orDefault(xKey, "category")
	}

	raw, ok := selectValue(item, xKey)
	if !ok {
		if nested, isMap := item["payload"].(map[string]any); isMap {
			raw, ok = selectValue(nested, xKey)
		}
	}
	if !ok {
		return Selection{}, false
	}
	v, err := filters.FromAny(raw)
	if err != nil || v.IsEmpty() {
		return Selection{}, false
	}
	return Selection{WidgetID: w.ID, Key: key, Value: v}, true
}

func selectValue(item map[string]any, xKey string) (any, bool) {
	keys := []string{"name"}
	if xKey != "" {
		keys = append(keys, xKey)
	}
	keys = append(keys, "label", "category")
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return v, true
		}
	}
	return nil, false
}
