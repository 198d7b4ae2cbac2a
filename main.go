package main

import "example.com/mtui/cmd"

func main() {
	cmd.Execute()
}
