// Package workflow carries each inbound voice attachment from the chat event
// to its deliverable.
//
// The Coordinator receives a message's attachments through
// HandleAttachmentMessage, filters them, and starts one goroutine per audio
// attachment. Each job moves Received → Validated → Staged → Converting or
// Transcribing → Succeeded or Failed. The staged inbox copy is removed on
// every path, and the rendered video is removed after delivery only when
// delete-on-success is configured. Daily notes are never removed.
//
// Failures are mapped onto a small taxonomy by Classify. The class decides
// the chat reply, the metrics outcome label, and whether the operator is
// alerted.
package workflow
