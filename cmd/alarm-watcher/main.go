package main

import "github.com/jorgeroden/plc-alarm-watcher/cmd/alarm-watcher/cmd"

func main() {
	cmd.Execute()
}
