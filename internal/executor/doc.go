// Package executor implements the per-host call policy: how many times a
// call is attempted, how long to wait between attempts, and which replies
// count as success, idempotent success, absence or failure.
//
// Reply interpretation per operation:
//
//	            ReplyOK   ReplyConflict   ReplyNotFound   ReplyUnavailable
//	Create      Applied   Applied         retry           retry
//	Delete      Applied   retry           retry           retry
//	Status      Applied   retry           NotFound        retry
//
// With MaxRetries=3 and RetryTimeout=1s a call that never succeeds makes
// three attempts and sleeps 1s and 2s between them.
//
// Attempts are driven by github.com/avast/retry-go. Cancelling the context
// abandons a pending backoff and the call ends as Failed.
package executor
