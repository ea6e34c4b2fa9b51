// Package notifications sends operator alerts to an ntfy topic.
//
// Chat replies tell the sender what happened to their voice message; ntfy
// tells the operator when something needs attention on the host, such as a
// missing encoder or a failing transcription server. When no topic is
// configured a no-op service is returned.
package notifications
