package main

import "github.com/stepcap/stepcap/cmd"

func main() {
	cmd.Execute()
}
