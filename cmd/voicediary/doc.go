// Package main hosts the voicediary CLI entrypoint and command graph.
//
// The Cobra command tree starts the bot daemon, runs environment checks,
// reports the state of the work directory, and exposes one-shot conversion
// and transcription of local files so the pipeline can be exercised without
// a chat connection.
//
// Keep this package lean: extend the internal packages first, then surface
// the behaviour through a command here.
package main
