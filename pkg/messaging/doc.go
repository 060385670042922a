// Package messaging is the only channel between feedrelay's execution
// contexts: the page agent driving a browser tab, the background worker
// owning network egress, and the popup presenter.
//
// Each context registers an Endpoint on a shared Bus. Payloads are JSON
// encoded on send and copied on delivery, so contexts never share memory.
// Send waits for a single reply; a missing listener or an unanswered
// message is reported as unreachable rather than as an empty success.
package messaging
