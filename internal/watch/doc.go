// Package watch provides file-watching capabilities for elmdev's
// edit-compile-reload workflow. It monitors the compiler input and any
// extra source directories, debounces rapid events, and re-runs the
// compile step. A failing compile is reported and the watch continues.
package watch
