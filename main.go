package main

import "github.com/derickschaefer/shelfindex/cmd"

func main() {
	cmd.Execute()
}
