package enums

import "fmt"

// ScheduledTaskType names deferred side effects executed by the worker.
type ScheduledTaskType string

const (
	TaskDeleteMessage ScheduledTaskType = "delete_message"
)

var validScheduledTaskTypes = []ScheduledTaskType{
	TaskDeleteMessage,
}

// String implements fmt.Stringer.
func (t ScheduledTaskType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ScheduledTaskType.
func (t ScheduledTaskType) IsValid() bool {
	for _, candidate := range validScheduledTaskTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseScheduledTaskType converts raw input into a ScheduledTaskType.
func ParseScheduledTaskType(value string) (ScheduledTaskType, error) {
	for _, candidate := range validScheduledTaskTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scheduled task type %q", value)
}

// ScheduledTaskStatus tracks execution state of a scheduled task.
type ScheduledTaskStatus string

const (
	TaskStatusPending ScheduledTaskStatus = "pending"
	TaskStatusDone    ScheduledTaskStatus = "done"
	TaskStatusFailed  ScheduledTaskStatus = "failed"
)

var validScheduledTaskStatuses = []ScheduledTaskStatus{
	TaskStatusPending,
	TaskStatusDone,
	TaskStatusFailed,
}

// String implements fmt.Stringer.
func (s ScheduledTaskStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ScheduledTaskStatus.
func (s ScheduledTaskStatus) IsValid() bool {
	for _, candidate := range validScheduledTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
