package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainRows   = "fixtures/rows/v1"
	DomainRecipe = "fixtures/recipe/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeRows returns the canonical JSON encoding of columns and rows as they
// are persisted in the cache.
func EncodeRows(columns []string, rows []IRObject) (colsJSON, rowsJSON string, err error) {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []IRObject{}
	}
	c, err := MarshalCanonical(columns)
	if err != nil {
		return "", "", fmt.Errorf("encode columns: %w", err)
	}
	r, err := MarshalCanonical(rows)
	if err != nil {
		return "", "", fmt.Errorf("encode rows: %w", err)
	}
	return string(c), string(r), nil
}

// DecodeRows parses the persisted encodings produced by EncodeRows.
func DecodeRows(colsJSON, rowsJSON string) ([]string, []IRObject, error) {
	var arr IRArray
	if err := arr.UnmarshalJSON([]byte(colsJSON)); err != nil {
		return nil, nil, fmt.Errorf("decode columns: %w", err)
	}
	columns := make([]string, len(arr))
	for i, v := range arr {
		s, ok := v.(IRString)
		if !ok {
			return nil, nil, fmt.Errorf("decode columns: element %d is %T, want string", i, v)
		}
		columns[i] = string(s)
	}

	var rowArr IRArray
	if err := rowArr.UnmarshalJSON([]byte(rowsJSON)); err != nil {
		return nil, nil, fmt.Errorf("decode rows: %w", err)
	}
	rows := make([]IRObject, len(rowArr))
	for i, v := range rowArr {
		obj, ok := v.(IRObject)
		if !ok {
			return nil, nil, fmt.Errorf("decode rows: element %d is %T, want object", i, v)
		}
		rows[i] = obj
	}
	return columns, rows, nil
}

// RowsDigest computes the content digest stored next to a cached fixture.
// The digest covers the key, the column order and the canonical rows, so a
// cache row that was tampered with outside the engine no longer verifies.
func RowsDigest(key FixtureKey, colsJSON, rowsJSON string) string {
	data := make([]byte, 0, len(key.EntityType)+len(key.SetName)+len(colsJSON)+len(rowsJSON)+3)
	data = append(data, key.EntityType...)
	data = append(data, 0x00)
	data = append(data, key.SetName...)
	data = append(data, 0x00)
	data = append(data, colsJSON...)
	data = append(data, 0x00)
	data = append(data, rowsJSON...)
	return hashWithDomain(DomainRows, data)
}

// RecipeDigest identifies a recipe list for an entity type independent of
// order. Registration compares digests to detect no-op re-registration.
func RecipeDigest(entityType string, recipes []Recipe) (string, error) {
	obj := IRObject{}
	for _, r := range recipes {
		obj[r.SetName] = IRString(r.Expression)
	}
	canonical, err := MarshalCanonical(IRObject{
		"entity_type": IRString(entityType),
		"recipes":     obj,
	})
	if err != nil {
		return "", fmt.Errorf("recipe digest: %w", err)
	}
	return hashWithDomain(DomainRecipe, canonical), nil
}
