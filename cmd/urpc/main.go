// Command urpc serves a schema tree over HTTP and WebSocket and lets you
// inspect and call it from the shell.
package main

func main() {
	Execute()
}
