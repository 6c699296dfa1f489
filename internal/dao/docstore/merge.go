package docstore

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"time"

	"support_chat_server/pkg/errorx"
)

// Merge computes the state of a document after patch. Backends call it with the row they
// loaded under lock; exists is false when no row was found.
func Merge(current Document, exists bool, id string, patch Patch, now time.Time) (Document, error) {
	if !exists && patch.MustExist {
		return Document{}, errorx.Wrapf(errorx.ErrNotFound, errorx.CodeNotFound, "document %s not found", id)
	}
	if patch.Check != nil {
		if err := patch.Check(current, exists); err != nil {
			return Document{}, err
		}
	}

	next := Document{
		ID:         id,
		SortKey:    current.SortKey,
		Data:       maps.Clone(current.Data),
		CreateTime: current.CreateTime,
		UpdateTime: now,
	}
	if next.Data == nil {
		next.Data = make(map[string]any, len(patch.Fields))
	}
	if !exists {
		next.CreateTime = now
	}
	if patch.SortKey != nil {
		next.SortKey = *patch.SortKey
	}

	for k, v := range patch.Fields {
		inc, ok := v.(increment)
		if !ok {
			next.Data[k] = v
			continue
		}
		base, err := asInt64(next.Data[k])
		if err != nil {
			return Document{}, errorx.Wrapf(err, errorx.CodeValidation, "increment field %q", k)
		}
		next.Data[k] = base + inc.n
	}
	return next, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non integral value %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("field holds %T, not a number", v)
	}
}

// Encode turns a tagged struct into document data.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeValidation, "encode document")
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeValidation, "encode document")
	}
	return data, nil
}

// Decode fills a tagged struct from document data.
func Decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeServerBusy, "decode document")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errorx.Wrap(err, errorx.CodeServerBusy, "decode document")
	}
	return nil
}

// MarshalData and UnmarshalData are the column codec shared by the SQL backends.
func MarshalData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeValidation, "marshal document data")
	}
	return string(raw), nil
}

func UnmarshalData(raw string) (map[string]any, error) {
	data := map[string]any{}
	if raw == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeStoreUnavailable, "corrupt document data")
	}
	return data, nil
}
