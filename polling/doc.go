// Package polling drives submit-then-poll providers to a terminal state.
//
// A Controller calls a PollFunc once per interval, forwards in-progress
// percentages to a progress.Reporter unchanged and stops on success,
// provider failure, an exhausted wait budget or context cancellation.
package polling
