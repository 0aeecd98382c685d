package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	taskIDPattern    = regexp.MustCompile(`^T(\d+)$`)
	sessionIDPattern = regexp.MustCompile(`^session_\d{8}_\d{6}_[0-9a-f]{6}$`)
)

// ValidTaskID reports whether id has the T<digits> shape.
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// TaskIDNumber returns the numeric suffix of a task id, or -1 if malformed.
func TaskIDNumber(id string) int {
	m := taskIDPattern.FindStringSubmatch(id)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// NextTaskID allocates the next task id: T + (1 + max numeric suffix seen
// across the active and archive documents). Ids are never reused.
func NextTaskID(active *TodoFile, archive *ArchiveFile) string {
	max := 0
	for _, t := range active.Tasks {
		if n := TaskIDNumber(t.ID); n > max {
			max = n
		}
	}
	if archive != nil {
		for _, t := range archive.Tasks {
			if n := TaskIDNumber(t.ID); n > max {
				max = n
			}
		}
	}
	return FormatTaskID(max + 1)
}

// FormatTaskID renders a numeric task id with the conventional zero padding.
func FormatTaskID(n int) string {
	return fmt.Sprintf("T%03d", n)
}

// ValidSessionID reports whether id has the session_YYYYMMDD_HHMMSS_<6hex>
// shape.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NewSessionID mints a session id from the clock plus a random hex suffix.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("session_%s_%s", now.UTC().Format("20060102_150405"), suffix)
}
