package source

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"associateflow/associate"
	"associateflow/stage"
)

const (
	// UnknownName replaces a missing associate name.
	UnknownName = "Desconocido"
	// MissingIdentification replaces a missing identification code.
	MissingIdentification = "N/A"
)

// Normalize builds a Record from one raw upstream entry. Field names vary in
// capitalisation across exports; missing values get fixed placeholders and a
// missing id gets a generated one from newID (uuid when nil).
func Normalize(raw map[string]any, newID func() string) associate.Record {
	if newID == nil {
		newID = uuid.NewString
	}

	id := idString(raw["id"])
	if id == "" {
		id = newID()
	}

	rec := associate.Record{
		ID:                 id,
		Name:               firstString(raw, UnknownName, "Nombre", "nombre"),
		IdentificationCode: firstString(raw, MissingIdentification, "Identificacion", "identificacion"),
		Stage:              firstString(raw, string(stage.Prospect), "estado_pipeline", "Estado"),
	}
	if paid, ok := raw["aporte_49900_pagado"].(bool); ok {
		rec.ContributionPaid = paid
	}
	return rec
}

// NormalizeAll normalizes every element of a decoded JSON array. Elements that
// are not objects are skipped.
func NormalizeAll(items []any, newID func() string) []associate.Record {
	out := make([]associate.Record, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Normalize(raw, newID))
	}
	return out
}

func firstString(raw map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if s := idString(raw[k]); s != "" {
			return s
		}
	}
	return fallback
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
