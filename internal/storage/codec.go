package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

// typedValue keeps the Go type of a parameter across a JSON round trip so an
// int64 never comes back as float64.
type typedValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// EncodeParams serializes a parameter assignment.
func EncodeParams(params map[string]any) (string, error) {
	out := make(map[string]typedValue, len(params))
	for name, v := range params {
		var tag string
		switch v.(type) {
		case nil:
			out[name] = typedValue{T: "null"}
			continue
		case float64:
			tag = "float"
		case int64:
			tag = "int"
		case string:
			tag = "string"
		case bool:
			tag = "bool"
		default:
			tag = "json"
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode param %q: %w", name, err)
		}
		out[name] = typedValue{T: tag, V: raw}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeParams reverses EncodeParams.
func DecodeParams(data string) (map[string]any, error) {
	var in map[string]typedValue
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	params := make(map[string]any, len(in))
	for name, tv := range in {
		var (
			v   any
			err error
		)
		switch tv.T {
		case "null":
			v = nil
		case "float":
			var f float64
			err = json.Unmarshal(tv.V, &f)
			v = f
		case "int":
			var i int64
			err = json.Unmarshal(tv.V, &i)
			v = i
		case "string":
			var s string
			err = json.Unmarshal(tv.V, &s)
			v = s
		case "bool":
			var b bool
			err = json.Unmarshal(tv.V, &b)
			v = b
		case "json":
			dec := json.NewDecoder(bytes.NewReader(tv.V))
			dec.UseNumber()
			if err = dec.Decode(&v); err == nil {
				v = space.NormalizeValue(v)
			}
		default:
			err = fmt.Errorf("unknown type tag %q", tv.T)
		}
		if err != nil {
			return nil, fmt.Errorf("decode param %q: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

func encodeIntermediate(m map[int64]float64) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode intermediate: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeIntermediate(s sql.NullString) (map[int64]float64, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[int64]float64
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decode intermediate: %w", err)
	}
	return m, nil
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

const trialColumns = `study, id, state, params, value, intermediate, space_version, created_at, finished_at`

func scanTrial(row rowScanner) (models.TrialRecord, error) {
	var (
		t            models.TrialRecord
		state        string
		params       string
		value        sql.NullFloat64
		intermediate sql.NullString
		createdAt    int64
		finishedAt   sql.NullInt64
	)
	if err := row.Scan(&t.Study, &t.ID, &state, &params, &value, &intermediate, &t.SpaceVersion, &createdAt, &finishedAt); err != nil {
		return models.TrialRecord{}, err
	}

	t.State = models.TrialState(state)
	p, err := DecodeParams(params)
	if err != nil {
		return models.TrialRecord{}, err
	}
	t.Params = p
	if value.Valid {
		v := value.Float64
		t.Value = &v
	}
	if t.Intermediate, err = decodeIntermediate(intermediate); err != nil {
		return models.TrialRecord{}, err
	}
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	if finishedAt.Valid {
		f := time.Unix(0, finishedAt.Int64).UTC()
		t.FinishedAt = &f
	}
	return t, nil
}

func nullValue(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
