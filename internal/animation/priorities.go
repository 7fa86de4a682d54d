package animation

import "marquee/internal/task/engine"

// Priorities used by the triggers. Lower is more urgent; see engine.Priority.
const (
	// PriorityStop preempts everything and clears the queue.
	PriorityStop engine.Priority = -1

	// PriorityMessage is used for message delivery, inbox replay and the demo.
	PriorityMessage engine.Priority = 1

	// PriorityUrgent is used for countdowns, the launch feed and clearing
	// the inbox.
	PriorityUrgent engine.Priority = 2

	// PriorityIdle is the background inbox indicator.
	PriorityIdle engine.Priority = 3

	// PriorityClock keeps the wall clock below everything else.
	PriorityClock engine.Priority = 5
)
