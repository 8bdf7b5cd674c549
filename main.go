package main

import "github.com/kozaktomas/photo-quality/cmd"

func main() {
	cmd.Execute()
}
