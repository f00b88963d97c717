package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// POIID computes the deterministic id of a point of interest. Identical
// file content reproduces identical ids across runs, which is what makes
// InsertPOIs an "insert or replace" and re-analysis idempotent.
func POIID(filePath, name, poiType string, startLine int) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(poiType))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	return hex.EncodeToString(h.Sum(nil))
}

// RelationshipHash computes H(source_poi_id ":" target_poi_id ":" uppercase(type)),
// the identifier every component must derive identically so that
// RelationshipEvidence rows for the same logical edge collapse onto one
// Relationship row regardless of which pass observed them.
func RelationshipHash(sourcePOIID, targetPOIID, relType string) string {
	canonical := fmt.Sprintf("%s:%s:%s", sourcePOIID, targetPOIID, strings.ToUpper(relType))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
