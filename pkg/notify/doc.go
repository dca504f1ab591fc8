// Package notify delivers transactional email.
//
// SMTPNotifier relays through an SMTP server with gomail. PreviewNotifier
// never leaves the process: it keeps rendered messages in an expiring LRU
// and returns a preview URL, which the API surfaces to clients in
// development deployments.
//
// QueuedNotifier moves any notifier onto an async.WorkerPool so slow relays
// stay off the request path.
package notify
