// Package queue carries import jobs between the CLI and the worker over an asynq (Redis) queue.
//
// The task payload only names the job; everything else is read from the database when the
// task is processed, so a task may be delivered more than once.
package queue
