// Package deps reports whether the external binaries voicediary shells out
// to are installed.
package deps
