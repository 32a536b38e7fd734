// Package scheduler runs due tasks.
//
// Scheduler.RunDue is the single execution path: it selects due tasks from the
// store, acquires each one, hands it to the dispatcher, releases it with the
// outcome and reports what happened. Driver calls RunDue on a timer; manual
// triggers (tools, HTTP, CLI) call it directly.
package scheduler
