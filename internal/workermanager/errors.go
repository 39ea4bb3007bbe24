package workermanager

import "errors"

// ErrNoWorkerAvailable means no worker has a ready bot. Retried internally
// up to MAX_INSPECT_RETRIES before being surfaced.
var ErrNoWorkerAvailable = errors.New("no worker has ready bots")

// ErrInspectTimedOut is surfaced once a request has exhausted its cross-bot
// retries without a reply.
var ErrInspectTimedOut = errors.New("inspection timed out")

// ErrShutDown is returned by InspectItem once the manager has been shut
// down and no longer accepts new work.
var ErrShutDown = errors.New("worker manager is shut down")
