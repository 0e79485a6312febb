package pebblestore

import (
	"fmt"
	"regexp"
	"time"

	"variantree/internal/domain"
)

// Key layout. Every secondary index maps to a message id; the record lives
// under msg:<id>.
//
//	msg:<id>                               -> JSON message
//	variant:<root>:<seq>                   -> id
//	branch:<conversation-branch>:<ts>:<id> -> id
//	thread:<thread>:<ts>:<id>              -> id
const (
	msgKeyFmt     = "msg:%s"
	variantKeyFmt = "variant:%s:%s"
	branchKeyFmt  = "branch:%s:%s:%s"
	threadKeyFmt  = "thread:%s:%s:%s"

	tsPadWidth  = 20
	seqPadWidth = 4
)

// Ids are embedded in keys, so ':' must never appear in them
var idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateID ensures an id is safe to embed in keys
func ValidateID(kind, id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid %s id %q: %w", kind, id, domain.ErrValidation)
	}
	return nil
}

func formatTS(t time.Time) string {
	return fmt.Sprintf("%0*d", tsPadWidth, t.UnixNano())
}

func formatSeq(seq int) string {
	return fmt.Sprintf("%0*d", seqPadWidth, seq)
}

func msgKey(id string) []byte {
	return []byte(fmt.Sprintf(msgKeyFmt, id))
}

func variantKey(rootID string, seq int) []byte {
	return []byte(fmt.Sprintf(variantKeyFmt, rootID, formatSeq(seq)))
}

func variantPrefix(rootID string) []byte {
	return []byte("variant:" + rootID + ":")
}

func branchKey(branchID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf(branchKeyFmt, branchID, formatTS(createdAt), id))
}

func branchPrefix(branchID string) []byte {
	return []byte("branch:" + branchID + ":")
}

func threadKey(threadID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf(threadKeyFmt, threadID, formatTS(createdAt), id))
}

func threadPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":")
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; no upper bound
}
