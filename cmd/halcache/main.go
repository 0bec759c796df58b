package main

import "github.com/aweris/halcache/cmd/halcache/cmd"

func main() {
	cmd.Execute()
}
