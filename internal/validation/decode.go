package validation

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/mcare/mcare/pkg/civil"
)

var dateType = reflect.TypeOf(civil.Date{})

func dateHook(from, to reflect.Type, data any) (any, error) {
	if to != dateType || from.Kind() != reflect.String {
		return data, nil
	}
	d, ok := ParseDate(data.(string))
	if !ok {
		return nil, fmt.Errorf("invalid date %q", data)
	}
	return d, nil
}

func stringHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.String {
		return data, nil
	}
	return SanitizeString(data.(string)), nil
}

// Decode copies the keys of p into dst using dst's json tags. Keys absent
// from p leave the matching fields untouched; explicit nulls clear them.
// It is meant for payloads that already passed Validate.
func Decode(p Payload, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		ZeroFields: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(dateHook, stringHook),
		Result:     dst,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
