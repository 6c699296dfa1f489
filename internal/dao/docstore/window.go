package docstore

// WindowClause renders the cursor bounds and ordering of q for the SQL backends, which
// store documents as rows (path, id, sort_key, ...). conds are ANDed after "path = ?".
func WindowClause(q Query) (conds []string, args []any, order string) {
	if q.Before != nil {
		conds = append(conds, "(sort_key < ? OR (sort_key = ? AND id < ?))")
		args = append(args, q.Before.SortKey, q.Before.SortKey, q.Before.ID)
	}
	if q.After != nil {
		conds = append(conds, "(sort_key > ? OR (sort_key = ? AND id > ?))")
		args = append(args, q.After.SortKey, q.After.SortKey, q.After.ID)
	}
	order = "sort_key ASC, id ASC"
	if q.Desc {
		order = "sort_key DESC, id DESC"
	}
	return conds, args, order
}
