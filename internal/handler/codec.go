package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// decodeError marks a request body that could not be decoded.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "invalid request body: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

// decodeObject reads the request body as a JSON object and calls field for
// every key. Unknown keys must be skipped by field.
func decodeObject(w http.ResponseWriter, r *http.Request, limit int64, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return &decodeError{err: err}
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decimalValue accepts a JSON number or a numeric string.
func decimalValue(d *jx.Decoder) (decimal.Decimal, error) {
	switch t := d.Next(); t {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", t)
	}
}

func optDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decimalValue(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optTime(d *jx.Decoder) (*time.Time, error) {
	s, err := optStr(d)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func strList(d *jx.Decoder) ([]string, error) {
	var out []string
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func stringMap(d *jx.Decoder) (map[string]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := map[string]string{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Str()
		out[key] = v
		return err
	})
	return out, err
}

// money writes v as a number with two decimals.
func money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func optMoney(e *jx.Encoder, v *decimal.Decimal) {
	if v == nil {
		e.Null()
		return
	}
	money(e, *v)
}

func number(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func strArr(e *jx.Encoder, s []string) {
	e.ArrStart()
	for _, v := range s {
		e.Str(v)
	}
	e.ArrEnd()
}

func strObj(e *jx.Encoder, m map[string]string) {
	e.ObjStart()
	for k, v := range m {
		e.FieldStart(k)
		e.Str(v)
	}
	e.ObjEnd()
}

func optTimeValue(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
