package uid

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TempPrefix marks identifiers assigned to optimistic records before the
// remote store has confirmed them.
const TempPrefix = "temp-"

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var tempSeq atomic.Uint64

// Temp returns a temporary identifier derived from now. A per-process
// sequence keeps identifiers minted in the same millisecond distinct.
func Temp(now time.Time) string {
	return TempPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(tempSeq.Add(1), 10)
}

// IsTemp reports whether id was produced by Temp.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}
