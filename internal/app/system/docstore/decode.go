package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode copies a document's fields into out, which must be a pointer to a
// struct tagged with `mapstructure` keys. Timestamps may arrive either as
// time.Time or as RFC 3339 strings.
func Decode(doc Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			timeToUTC,
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(doc)); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeSnapshot decodes snap.Data into out. It fails with ErrNotFound when
// the snapshot has no document.
func DecodeSnapshot(snap Snapshot, out any) error {
	if !snap.Exists {
		return ErrNotFound
	}
	return Decode(snap.Data, out)
}

func timeToUTC(from, to reflect.Type, data any) (any, error) {
	if t, ok := data.(time.Time); ok && to == reflect.TypeOf(time.Time{}) {
		return t.UTC(), nil
	}
	return data, nil
}
