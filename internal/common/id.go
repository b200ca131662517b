package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// SheetID derives the deterministic identity of one sheet within a workbook.
// The same (content hash, index, name) triple always yields the same ID, so a
// reprocessed workbook upserts the same portfolio documents instead of
// duplicating them.
// Format: sheet_<32 hex chars>
func SheetID(contentHash string, sheetIndex int, sheetName string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", contentHash, sheetIndex, sheetName))
	return "sheet_" + hex.EncodeToString(sum[:16])
}

// ContentHash returns the hex SHA-256 of raw workbook bytes
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
