// Package tui is the RetroIDE terminal front-end.
//
// The screen shows a sidebar of actions, three tabs (Code, Assets, Build),
// a console fed by worker events and a status line with the worker's
// health. Key bindings:
//
//	n  new project      1  Code tab
//	o  open asset       2  Assets tab
//	b  build ROM        3  Build tab
//	r  run emulator     R  restart worker
//	q  quit
//
// Actions run on their own goroutines; their results and bus events are
// queued and applied on the UI goroutine after a tcell interrupt event.
package tui
