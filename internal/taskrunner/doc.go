// Package taskrunner launches one-off commands as ECS Fargate tasks, waits
// for them to stop and streams their CloudWatch logs.
//
// A Run moves through REGISTERING, LAUNCHING, WAITING, FETCHING_RESULT,
// LOG_STREAMING and DONE. Invalid arguments end it in FAILED_ARGS before any
// AWS call is made.
package taskrunner
