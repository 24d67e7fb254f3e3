package storage

import (
	"strings"
	"sync"
	"time"
)

const containerTimestampLayout = "20060102150405"

// Clock abstracts time for the namer so collision handling is testable.
type Clock struct {
	Now   func() time.Time
	Sleep func(d time.Duration)
}

func systemClock() Clock {
	return Clock{
		Now:   func() time.Time { return time.Now().UTC() },
		Sleep: time.Sleep,
	}
}

// ContainerNamer produces container names of the form
// "<prefix>-<YYYYMMDDHHMMSS>" from the UTC clock. Two calls within the same
// second would collide, so the namer waits for the next clock tick instead
// of silently reusing an unrelated container's name.
type ContainerNamer struct {
	clock Clock

	mu   sync.Mutex
	last string
}

func NewContainerNamer() *ContainerNamer {
	return &ContainerNamer{clock: systemClock()}
}

// NewContainerNamerWithClock is used by tests.
func NewContainerNamerWithClock(clock Clock) *ContainerNamer {
	if clock.Now == nil || clock.Sleep == nil {
		return NewContainerNamer()
	}
	return &ContainerNamer{clock: clock}
}

// Next returns a fresh container name for the prefix, never repeating the
// previously issued timestamp.
func (n *ContainerNamer) Next(prefix string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	stamp := n.clock.Now().Format(containerTimestampLayout)
	for stamp == n.last {
		n.clock.Sleep(100 * time.Millisecond)
		stamp = n.clock.Now().Format(containerTimestampLayout)
	}
	n.last = stamp
	return prefix + "-" + stamp
}

// ContainerTimestamp parses the trailing timestamp out of a container name.
// The second return is false for names outside the gateway's naming scheme.
func ContainerTimestamp(name string) (time.Time, bool) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx+1 >= len(name) {
		return time.Time{}, false
	}
	stamp, err := time.Parse(containerTimestampLayout, name[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return stamp.UTC(), true
}
