package services

import (
	"bytes"
	"encoding/csv"
	"sort"
)

// ExportAuditsCSV renders audits in long format, one row per answered item.
// Titles come from items; ids missing there fall back to the id itself. Item
// rows follow the items order, then unknown ids alphabetically.
func ExportAuditsCSV(records []AuditRecord, items []ItemDefinition) ([]byte, error) {
	titles := make(map[string]string, len(items))
	rank := make(map[string]int, len(items))
	ordered := append([]ItemDefinition(nil), items...)
	sortItems(ordered)
	for i, it := range ordered {
		titles[it.ID] = it.Title
		rank[it.ID] = i
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"audit_id", "store", "date", "verifier", "period", "item_id", "item_title", "status", "comment"})
	for _, rec := range records {
		ids := make([]string, 0, len(rec.Results))
		for id := range rec.Results {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			ri, iok := rank[ids[i]]
			rj, jok := rank[ids[j]]
			switch {
			case iok && jok:
				return ri < rj
			case iok != jok:
				return iok
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			title := titles[id]
			if title == "" {
				title = id
			}
			resp := rec.Results[id]
			row := []string{rec.ID, rec.StoreName, rec.Date, rec.Verifier, rec.Period, id, title, string(resp.Status), resp.Comment}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
