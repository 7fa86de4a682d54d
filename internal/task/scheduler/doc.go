// Package scheduler fires configured triggers on cron or interval schedules.
//
// A schedule runs a Job on the cron goroutine. Jobs are expected to be
// quick: they queue an animation and return, the animation itself runs on
// the engine's runner.
package scheduler
